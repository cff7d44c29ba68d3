package plan

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Plans []Plan `yaml:"plans"`
}

// LoadFile reads plan definitions from a YAML file.
//
// Example:
//
//	plans:
//	  - id: freemium
//	    name: Freemium
//	    interval: none
//	    limits: {vehicles: 2, users: 1, drivers: 2}
//	  - id: fleet_pro
//	    name: Fleet Pro
//	    price: {amount: 4900, currency: USD}
//	    interval: monthly
//	    trial_days: 14
//	    external_price_id: price_fleet_pro_monthly
//	    limits: {vehicles: 50, users: 10, drivers: -1}
func LoadFile(path string) ([]Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoad, err)
	}
	defer f.Close()

	return Decode(f)
}

// Decode parses YAML plan definitions and validates each plan.
func Decode(r io.Reader) ([]Plan, error) {
	var cf catalogFile
	if err := yaml.NewDecoder(r).Decode(&cf); err != nil {
		return nil, errors.Join(ErrFailedToLoad, err)
	}

	seen := make(map[string]struct{}, len(cf.Plans))
	for i, p := range cf.Plans {
		if p.Interval == "" {
			cf.Plans[i].Interval = BillingIntervalNone
		}
		if p.Price.Currency == "" {
			cf.Plans[i].Price.Currency = "USD"
		}
		if err := cf.Plans[i].Validate(); err != nil {
			return nil, errors.Join(ErrFailedToLoad, err)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, errors.Join(ErrFailedToLoad, fmt.Errorf("%w: %s", ErrDuplicatePlan, p.ID))
		}
		seen[p.ID] = struct{}{}
	}
	return cf.Plans, nil
}
