package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"cflp/internal/result"
)

const practitioners = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"id":"D1"},"geometry":{"type":"Point","coordinates":[13.40,52.51]}},
 {"type":"Feature","properties":{"id":"D2"},"geometry":{"type":"Point","coordinates":[13.41,52.50]}},
 {"type":"Feature","properties":{"id":"D3"},"geometry":{"type":"Point","coordinates":[13.50,52.51]}}
]}`

const pharmacies = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"id":"F1","capacity":2},"geometry":{"type":"Point","coordinates":[13.40,52.50]}},
 {"type":"Feature","properties":{"id":"F2","capacity":2},"geometry":{"type":"Point","coordinates":[13.50,52.50]}}
]}`

func TestRunFromScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "testville_practitioners.geojson"), []byte(practitioners), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "testville_pharmacies.geojson"), []byte(pharmacies), 0o644))
	out := filepath.Join(dir, "out.geojson")

	var stdout bytes.Buffer
	err := run(context.Background(), []string{
		"--config", dir, "--data-dir", dir, "--city", "Testville, Nowhere", "--store", "file",
		"--gap", "0", "-o", "yaml", "--geojson", out,
	}, &stdout)
	require.NoError(t, err)

	var rep result.Report
	require.NoError(t, yaml.Unmarshal(stdout.Bytes(), &rep))
	require.Equal(t, "testville", rep.Scenario)
	require.Equal(t, "Optimal", rep.Status)
	require.Equal(t, 3, rep.Assigned)
	require.Len(t, rep.OpenFacilities, 2)

	require.FileExists(t, filepath.Join(dir, "cost_matrix_testville.json"))
	require.FileExists(t, filepath.Join(dir, "cflp_assignments_testville.json"))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	// two open facilities plus three assignment lines
	require.Len(t, fc.Features, 5)
}

func TestRunFallsBackToSampleData(t *testing.T) {
	dir := t.TempDir()
	var stdout bytes.Buffer
	err := run(context.Background(), []string{
		"--config", dir, "--data-dir", dir, "--city", "Berlin, Germany", "--store", "memory",
		"--gap", "0.3", "-o", "json",
	}, &stdout)
	require.NoError(t, err)

	var rep result.Report
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &rep))
	require.Equal(t, "berlin", rep.Scenario)
	require.Equal(t, 10, rep.Demand)
	require.Equal(t, 10, rep.Assigned)
	require.NotEmpty(t, rep.OpenFacilities)
	require.Contains(t, rep.OpenFacilities[0].ID, "Dummy_Pharmacy_")
}

func TestRunTextReport(t *testing.T) {
	dir := t.TempDir()
	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), []string{
		"--config", dir, "--dummy", "--store", "memory", "--gap", "0.3", "--fix-cost", "0",
	}, &stdout))
	require.Contains(t, stdout.String(), "assigned 10/10 demand points")
}

func TestRunRejectsBadOptions(t *testing.T) {
	dir := t.TempDir()
	for name, args := range map[string][]string{
		"format":     {"-o", "xml"},
		"gap":        {"--gap", "1.5"},
		"fix cost":   {"--fix-cost", "-1"},
		"time limit": {"--time-limit", "soon"},
		"store":      {"--store", "postgres"},
		"flag":       {"--nope"},
	} {
		t.Run(name, func(t *testing.T) {
			err := run(context.Background(), append([]string{"--config", dir, "--dummy"}, args...), &bytes.Buffer{})
			require.Error(t, err)
		})
	}
}
