// Package memory provides in-process implementations of the tenant,
// subscription and payment stores. They are safe for concurrent use and
// back the service when STORAGE_DRIVER=memory and in tests.
//
// Transactions are not supported; use subscription.NoTx with these stores.
package memory
