package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	if err != nil {
		t.Fatalf("Load of a missing file should fall back to defaults, got error: %v", err)
	}
	want := Default()
	if c != want {
		t.Errorf("got %+v, want defaults %+v", c, want)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "airmonitor_config.yml")
	contents := `
database:
  host: influx.example.org
  port: 8086
  user: agent
  password: secret
  name: airquality
SensirionSPS30:
  measurement: pm_readings
serial:
  port: /dev/ttyUSB0
sampling:
  count: 3
  interval_secs: 2.5
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Database.Host != "influx.example.org" || c.Database.Port != 8086 {
		t.Errorf("database config not loaded: %+v", c.Database)
	}
	if c.SensirionSPS30.Measurement != "pm_readings" {
		t.Errorf("SensirionSPS30.Measurement = %q, want pm_readings", c.SensirionSPS30.Measurement)
	}
	if c.Serial.Port != "/dev/ttyUSB0" {
		t.Errorf("Serial.Port = %q, want /dev/ttyUSB0", c.Serial.Port)
	}
	if c.Sampling.Count != 3 || c.Sampling.IntervalSecs != 2.5 {
		t.Errorf("Sampling = %+v, want {3 2.5}", c.Sampling)
	}
	// keys absent from the override file keep their default value
	if c.DHT22.Measurement != Default().DHT22.Measurement {
		t.Errorf("DHT22.Measurement = %q, want default %q", c.DHT22.Measurement, Default().DHT22.Measurement)
	}
}

func TestWriteDefaultThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "airmonitor_config.yml")
	if err := WriteDefault(path); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c != Default() {
		t.Errorf("round-tripped config %+v != defaults %+v", c, Default())
	}
}
