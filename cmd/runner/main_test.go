package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptionsValidate(t *testing.T) {
	testCases := []struct {
		name    string
		opts    options
		wantErr string
	}{
		{name: "stage", opts: options{stage: "inserts", userID: "u1", campaignID: "camp-a"}},
		{name: "dry run stage", opts: options{stage: "inserts", userID: "u1", campaignID: "camp-a", dryRun: true}},
		{name: "history", opts: options{campaignID: "camp-a", history: true}},
		{name: "status", opts: options{campaignID: "camp-a", status: true}},
		{name: "missing campaign", opts: options{stage: "inserts"}, wantErr: "-campaign is required"},
		{name: "missing stage", opts: options{campaignID: "camp-a"}, wantErr: "-stage is required"},
		{name: "two commands", opts: options{campaignID: "camp-a", status: true, reset: true}, wantErr: "mutually exclusive"},
		{name: "dry run history", opts: options{campaignID: "camp-a", history: true, dryRun: true}, wantErr: "-dry-run"},
		{name: "dry run status", opts: options{campaignID: "camp-a", status: true, dryRun: true}, wantErr: "-dry-run"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.opts.validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}
