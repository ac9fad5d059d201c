package testutil

import (
	"fmt"
	"testing"
	"time"

	"loanbook/pkg/model"
)

type ReservationBuilder struct {
	body map[string]any
}

func NewReservationBuilder(itemIDs ...int64) *ReservationBuilder {
	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
	return &ReservationBuilder{
		body: map[string]any{
			"name":             "Integration reservation",
			"item_ids":         itemIDs,
			"start_date":       start,
			"planned_end_date": start.Add(48 * time.Hour),
		},
	}
}

func (b *ReservationBuilder) WithName(name string) *ReservationBuilder {
	b.body["name"] = name
	return b
}

func (b *ReservationBuilder) WithInterval(start, end time.Time) *ReservationBuilder {
	b.body["start_date"] = start.UTC()
	b.body["planned_end_date"] = end.UTC()
	return b
}

func (b *ReservationBuilder) Build() map[string]any {
	return b.body
}

// RegisterItem creates an item through the API and returns it.
func RegisterItem(t *testing.T, c *Client, name string) model.Item {
	t.Helper()
	resp := c.POST(t, "/api/v1/items", map[string]any{"name": name})
	AssertStatusCode(t, resp, 201)

	var item model.Item
	resp.Data(t, &item)
	if item.ID <= 0 {
		t.Fatalf("registered item has no id: %s", string(resp.Body))
	}
	return item
}

func ReservationPath(id int64) string {
	return fmt.Sprintf("/api/v1/reservations/id/%d", id)
}
