package project_test

import (
	"errors"
	"testing"
	"time"

	"epingest/internal/domain/model"
	"epingest/internal/project"
	"epingest/internal/support/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings(t *testing.T) model.SimulationSettings {
	t.Helper()
	start, err := time.Parse(model.DatetimeLayout, "2013-05-01 00:05:00")
	require.NoError(t, err)
	end, err := time.Parse(model.DatetimeLayout, "2013-05-01 00:15:00")
	require.NoError(t, err)
	return model.SimulationSettings{
		StartDatetime:      start,
		EndDatetime:        end,
		TimestepMinutes:    5,
		ReportingFrequency: "Timestep",
	}
}

func zoneTable() model.WideTable {
	return model.WideTable{
		BuildingID: 7,
		Category:   "Zone_Air_Temperature",
		Columns:    []string{"ZoneA:Temp", "ZoneB:Temp"},
		Rows: []model.WideRow{
			{TimestampRaw: "05/01  00:05:00", Values: []float64{21.1, 22.2}},
			{TimestampRaw: "05/01  00:10:00", Values: []float64{21.3, 22.4}},
			{TimestampRaw: "05/01  00:15:00", Values: []float64{21.5, 22.6}},
		},
	}
}

func TestProject_ZoneTable(t *testing.T) {
	readings, err := project.Project(zoneTable(), testSettings(t))
	require.NoError(t, err)
	require.Len(t, readings, 6)

	var zoneA, zoneB int
	for _, r := range readings {
		assert.Equal(t, 7, r.BuildingID)
		assert.Equal(t, "Zone Air Temperature", r.VariableName)
		assert.Equal(t, 5, r.TimeResolution)
		assert.Equal(t, model.NoSubdivision, r.ScheduleName)
		assert.Equal(t, model.NoSubdivision, r.SurfaceName)
		assert.Equal(t, model.NoSubdivision, r.SystemNodeName)
		switch r.ZoneName {
		case "ZoneA":
			zoneA++
		case "ZoneB":
			zoneB++
		default:
			t.Fatalf("unexpected zone name %q", r.ZoneName)
		}
	}
	assert.Equal(t, 3, zoneA)
	assert.Equal(t, 3, zoneB)

	// Per-entity readings are contiguous and time-ascending.
	for i := 1; i < 3; i++ {
		assert.True(t, readings[i].Datetime.After(readings[i-1].Datetime))
		assert.Equal(t, readings[0].ZoneName, readings[i].ZoneName)
	}
}

func TestProject_FacilityTable(t *testing.T) {
	table := model.WideTable{
		BuildingID: 1,
		Category:   "Facility_Total_HVAC_Electric_Demand_Power",
		Columns:    []string{"Whole Building:Facility Total HVAC Electric Demand Power [W]"},
		Rows: []model.WideRow{
			{TimestampRaw: "05/01  00:05:00", Values: []float64{120.5}},
			{TimestampRaw: "05/01  00:10:00", Values: []float64{130.2}},
		},
	}

	readings, err := project.Project(table, testSettings(t))
	require.NoError(t, err)
	require.Len(t, readings, 2)

	for _, r := range readings {
		assert.Equal(t, "Facility Total HVAC Electric Demand Power", r.VariableName)
		assert.Equal(t, model.NoSubdivision, r.ScheduleName)
		assert.Equal(t, model.NoSubdivision, r.ZoneName)
		assert.Equal(t, model.NoSubdivision, r.SurfaceName)
		assert.Equal(t, model.NoSubdivision, r.SystemNodeName)
		assert.Equal(t, model.NoSubdivision, r.SubvariableName())
	}
	assert.Equal(t, 120.5, readings[0].Value)
	assert.Equal(t, 130.2, readings[1].Value)
}

func TestProject_ScheduleTable(t *testing.T) {
	table := model.WideTable{
		BuildingID: 3,
		Category:   "Schedule_Value",
		Columns:    []string{"OCCUPANCY SCH:Schedule Value [](TimeStep)", "LIGHTING SCH:Schedule Value [](TimeStep)"},
		Rows: []model.WideRow{
			{TimestampRaw: "05/01  00:05:00", Values: []float64{1, 0.4}},
			{TimestampRaw: "05/01  00:10:00", Values: []float64{0.9, 0.5}},
		},
	}

	readings, err := project.Project(table, testSettings(t))
	require.NoError(t, err)
	require.Len(t, readings, 4)

	assert.Equal(t, "Schedule Value", readings[0].VariableName)
	assert.Equal(t, "OCCUPANCY SCH", readings[0].ScheduleName)
	assert.Equal(t, "LIGHTING SCH", readings[2].ScheduleName)
	assert.Equal(t, "OCCUPANCY SCH", readings[0].SubvariableName())
}

func TestProject_SurfaceAndSystemNode(t *testing.T) {
	surface := model.WideTable{
		BuildingID: 2,
		Category:   "Surface_Inside_Face_Temperature",
		Columns:    []string{"WALL-1:Surface Inside Face Temperature [C]"},
		Rows:       []model.WideRow{{TimestampRaw: "05/01  00:05:00", Values: []float64{19.5}}},
	}
	readings, err := project.Project(surface, testSettings(t))
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, "WALL-1", readings[0].SurfaceName)
	assert.Equal(t, model.NoSubdivision, readings[0].ZoneName)

	node := model.WideTable{
		BuildingID: 2,
		Category:   "System_node_Temperature",
		Columns:    []string{"SUPPLY INLET:System Node Temperature [C]"},
		Rows:       []model.WideRow{{TimestampRaw: "05/01  00:05:00", Values: []float64{12.0}}},
	}
	readings, err = project.Project(node, testSettings(t))
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, "SUPPLY INLET", readings[0].SystemNodeName)
}

func TestProject_UnknownCategory(t *testing.T) {
	table := model.WideTable{
		BuildingID: 1,
		Category:   "Mystery_Variable",
		Columns:    []string{"X"},
		Rows:       []model.WideRow{{TimestampRaw: "05/01  00:05:00", Values: []float64{1}}},
	}
	_, err := project.Project(table, testSettings(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrUnknownVariableCategory))

	_, err = project.Keys(table)
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrUnknownVariableCategory))
}

func TestProject_MalformedTimestampFailsRow(t *testing.T) {
	table := zoneTable()
	table.Rows[1].TimestampRaw = "garbage"
	_, err := project.Project(table, testSettings(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrMalformedTimestamp))
}

func TestProject_Deterministic(t *testing.T) {
	first, err := project.Project(zoneTable(), testSettings(t))
	require.NoError(t, err)
	second, err := project.Project(zoneTable(), testSettings(t))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestKeys(t *testing.T) {
	keys, err := project.Keys(zoneTable())
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, model.IngestionKey{BuildingID: 7, VariableName: "Zone Air Temperature", SubvariableName: "ZoneA"}, keys[0])
	assert.Equal(t, model.IngestionKey{BuildingID: 7, VariableName: "Zone Air Temperature", SubvariableName: "ZoneB"}, keys[1])

	facility := model.WideTable{
		BuildingID: 1,
		Category:   "Site_Outdoor_Air_Drybulb_Temperature",
		Columns:    []string{"Environment:Site Outdoor Air Drybulb Temperature [C]"},
	}
	keys, err = project.Keys(facility)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, model.NoSubdivision, keys[0].SubvariableName)
}

func TestKeys_RejectsDuplicateEntityColumns(t *testing.T) {
	table := zoneTable()
	table.Columns = []string{"ZoneA:Temp", "ZoneA:RH"}

	_, err := project.Keys(table)
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrDuplicateEntity))
}
