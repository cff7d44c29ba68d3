// Package requestid assigns a correlation id to every HTTP request.
package requestid
