package scenario

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sarchlab/netexp/sim/timing"
)

// Environment variables that override scenario fields.
const (
	EnvStop        = "NETEXP_STOP"
	EnvSeed        = "NETEXP_SEED"
	EnvMonitorPort = "NETEXP_MONITOR_PORT"
	EnvSQLite      = "NETEXP_SQLITE"
	EnvCSV         = "NETEXP_CSV"
)

// LoadEnv reads variables from .env files into the environment. Variables
// already set are kept. Without arguments, ./.env is read if it exists.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		err := godotenv.Load()
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		return err
	}

	return godotenv.Load(files...)
}

// ApplyEnv overrides the scenario with the NETEXP_* variables that are set.
func (s *Scenario) ApplyEnv() error {
	var errs []error

	if v, ok := os.LookupEnv(EnvStop); ok {
		t, err := timing.ParseTime(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvStop, err))
		} else {
			s.Stop = Duration(t)
		}
	}

	if v, ok := os.LookupEnv(EnvSeed); ok && v != "" {
		s.Seed = v
	}

	if v, ok := os.LookupEnv(EnvMonitorPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvMonitorPort, err))
		} else {
			s.Output.MonitorPort = port
			s.Output.Monitor = true
		}
	}

	if v, ok := os.LookupEnv(EnvSQLite); ok {
		s.Output.SQLite = v
	}

	if v, ok := os.LookupEnv(EnvCSV); ok {
		s.Output.CSV = v
	}

	return errors.Join(errs...)
}
