package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"facility-calls-backend/internal/model"
)

func TestPlanGroupBy_Validation(t *testing.T) {
	testCases := []struct {
		name string
		args GroupByArgs
	}{
		{name: "empty by", args: GroupByArgs{}},
		{name: "unknown by field", args: GroupByArgs{By: []string{"colour"}}},
		{name: "duplicate by field", args: GroupByArgs{By: []string{"status", "status"}}},
		{
			name: "orderBy outside by",
			args: GroupByArgs{By: []string{"status"}, OrderBy: []Order{Asc("number")}},
		},
		{
			name: "having scalar outside by",
			args: GroupByArgs{By: []string{"status"}, Having: Gt("number", 1)},
		},
		{
			name: "avg over string",
			args: GroupByArgs{By: []string{"status"}, Aggregates: Aggregates{Avg: []string{"content"}}},
		},
		{
			name: "sum over all",
			args: GroupByArgs{By: []string{"status"}, Aggregates: Aggregates{Sum: []string{All}}},
		},
		{
			name: "malformed aggregate order",
			args: GroupByArgs{By: []string{"status"}, OrderBy: []Order{Desc("_count")}},
		},
		{
			name: "relation filter in having",
			args: GroupByArgs{By: []string{"machineId"}, Having: SomeOf("reports", nil)},
		},
		{
			name: "negative take",
			args: GroupByArgs{By: []string{"status"}, Take: Limit(-1)},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := PlanGroupBy(model.CallEntity, tc.args)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestPlanGroupBy_Render(t *testing.T) {
	db := newDryRunDB(t)

	plan, err := PlanGroupBy(model.CallEntity, GroupByArgs{
		By:         []string{"status"},
		Where:      Eq("tenantId", "t1"),
		Having:     Gt("_count._all", 1),
		OrderBy:    []Order{Desc("_count._all")},
		Aggregates: Aggregates{Count: []string{All}, Avg: []string{"number"}},
		Take:       Limit(10),
	})
	require.NoError(t, err)

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var rows []map[string]any
		return plan.Apply(tx.Table(model.CallEntity.Table)).Find(&rows)
	})
	assert.Equal(t, `SELECT "calls"."status" AS "status", COUNT(*) AS "_count_all", `+
		`CAST(AVG("calls"."number") AS DOUBLE PRECISION) AS "_avg_number" FROM "calls" `+
		`WHERE "calls"."tenant_id" = 't1' GROUP BY "calls"."status" HAVING COUNT(*) > 1 `+
		`ORDER BY COUNT(*) DESC LIMIT 10`, sql)
}

func TestPlanAggregate(t *testing.T) {
	_, err := PlanAggregate(model.CallEntity, AggregateArgs{})
	assert.ErrorIs(t, err, ErrValidation)

	plan, err := PlanAggregate(model.CallEntity, AggregateArgs{
		Aggregates: Aggregates{Count: []string{All, "responderId"}, Min: []string{"reportedAt"}, Sum: []string{"number"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, plan.Width())

	g, err := plan.Decode([]any{int64(3), int64(1), "2024-03-01 10:00:00+00:00", nil})
	require.NoError(t, err)
	assert.Equal(t, int64(3), g.Count[All])
	assert.Equal(t, int64(1), g.Count["responderId"])
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), g.Min["reportedAt"])
	assert.Nil(t, g.Sum["number"])

	_, err = plan.Decode([]any{int64(3)})
	assert.Error(t, err)
}

func TestPlanGroupBy_Decode(t *testing.T) {
	plan, err := PlanGroupBy(model.MachineEntity, GroupByArgs{
		By:         []string{"tenantId", "locationId"},
		Aggregates: Aggregates{Count: []string{All}},
	})
	require.NoError(t, err)

	g, err := plan.Decode([]any{[]byte("t1"), "loc-1", int64(2)})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"tenantId": "t1", "locationId": "loc-1"}, g.Keys)
	assert.Equal(t, int64(2), g.Count[All])
}
