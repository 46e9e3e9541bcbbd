package cli

import (
	"context"
	"fmt"
	"io"

	apperrors "github.com/gmsas95/medtracker/internal/errors"
	"github.com/gmsas95/medtracker/internal/tracker"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// ImportFile is the document read by the import command.
//
//	medications:
//	  - name: Lisinopril
//	    dosage: 10mg
//	    days: [1, 3]
//	    times: ["08:00", "20:00"]
//	    taken: {"2024-01-01T08:00": true}
type ImportFile struct {
	Medications []tracker.NewMedication `yaml:"medications"`
}

func ParseImport(r io.Reader) ([]tracker.NewMedication, error) {
	var doc ImportFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("parse import file: %w", err)
	}
	return doc.Medications, nil
}

// ImportResult counts what an import did.
type ImportResult struct {
	Created int
	Skipped int
}

// Import creates every medication. Invalid entries are skipped; a medication
// that was stored but whose reminders failed still counts as created.
func Import(ctx context.Context, svc *tracker.Service, meds []tracker.NewMedication) (ImportResult, error) {
	var res ImportResult
	var errs error
	for i, m := range meds {
		created, err := svc.Create(ctx, m)
		if created != nil {
			res.Created++
		} else {
			res.Skipped++
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("entry %d (%s): %w", i+1, m.Name, err))
		}
		if created == nil && !apperrors.IsValidation(err) {
			// Stop at the first store failure.
			res.Skipped += len(meds) - i - 1
			break
		}
	}
	return res, errs
}
