package ingest_test

import (
	"reflect"
	"testing"

	"callscope/internal/ingest"
)

func TestClassify(t *testing.T) {
	local := map[string]bool{
		"with_summary":    true,
		"missing_summary": false,
	}
	ids := []string{"fresh", "with_summary", "missing_summary"}

	tests := []struct {
		name    string
		full    bool
		want    []ingest.Action
		pending int
	}{
		{
			name:    "incremental",
			want:    []ingest.Action{ingest.ActionNew, ingest.ActionSkip, ingest.ActionUpdate},
			pending: 2,
		},
		{
			name:    "full",
			full:    true,
			want:    []ingest.Action{ingest.ActionNew, ingest.ActionUpdate, ingest.ActionUpdate},
			pending: 3,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			plan := ingest.Classify(ids, local, tc.full)
			got := make([]ingest.Action, 0, len(plan.Decisions))
			for i, d := range plan.Decisions {
				if d.ExternalID != ids[i] {
					t.Fatalf("decision %d id = %q, want %q", i, d.ExternalID, ids[i])
				}
				got = append(got, d.Action)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("actions = %v, want %v", got, tc.want)
			}
			if plan.New+plan.Update+plan.Skip != len(ids) {
				t.Fatalf("counts do not cover input: %+v", plan)
			}
			if len(plan.Pending()) != tc.pending {
				t.Fatalf("pending = %d, want %d", len(plan.Pending()), tc.pending)
			}
		})
	}
}

func TestClassifyEmpty(t *testing.T) {
	plan := ingest.Classify(nil, nil, false)
	if len(plan.Decisions) != 0 || plan.New != 0 || len(plan.Pending()) != 0 {
		t.Fatalf("expected empty plan, got %+v", plan)
	}
}
