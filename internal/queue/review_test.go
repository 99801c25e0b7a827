package queue

import (
	"testing"

	"github.com/google/uuid"
)

func TestDecodeDecision(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"approved offer", `{"entity_type":"offer","entity_id":"` + id.String() + `","approved":true}`, false},
		{"rejected campaign", `{"entity_type":"campaign","entity_id":"` + id.String() + `","approved":false}`, false},
		{"unknown entity", `{"entity_type":"deal","entity_id":"` + id.String() + `"}`, true},
		{"missing id", `{"entity_type":"offer"}`, true},
		{"not json", `approve`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := DecodeDecision([]byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && d.EntityID != id {
				t.Errorf("entity id = %s, want %s", d.EntityID, id)
			}
		})
	}
}
