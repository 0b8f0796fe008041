package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sarchlab/netexp/flow"
	"github.com/tebeka/atexit"
)

var csvHeader = []string{
	"RunID", "FlowID", "Src", "SrcPort", "Dst", "DstPort", "Protocol",
	"TxPackets", "TxBytes", "RxPackets", "RxBytes", "LostPackets",
	"TimeFirstTx", "TimeLastRx", "Duration", "Throughput", "RxThroughput",
	"AverageDelay", "AverageJitter", "LossRatio",
}

// CSVWriter writes flow summaries as CSV rows, one row per flow. Metrics that
// are not available are left empty.
type CSVWriter struct {
	runID     string
	file      *os.File
	csvWriter *csv.Writer
}

// NewCSVWriter creates the file, writes the header and flushes the file when
// the program exits. A ".csv" extension is added when the name has none.
func NewCSVWriter(filename, runID string) (*CSVWriter, error) {
	if filepath.Ext(filename) == "" {
		filename += ".csv"
	}

	file, err := os.OpenFile(filename,
		os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}

	c, err := newCSVWriter(file, runID)
	if err != nil {
		file.Close()
		return nil, err
	}

	c.file = file

	atexit.Register(func() {
		_ = c.Close()
	})

	return c, nil
}

// NewCSVWriterTo writes CSV rows to w.
func NewCSVWriterTo(w io.Writer, runID string) (*CSVWriter, error) {
	return newCSVWriter(w, runID)
}

func newCSVWriter(w io.Writer, runID string) (*CSVWriter, error) {
	c := &CSVWriter{
		runID:     runID,
		csvWriter: csv.NewWriter(w),
	}

	if err := c.csvWriter.Write(csvHeader); err != nil {
		return nil, err
	}

	return c, nil
}

func csvFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func csvMetric(m flow.Metric) string {
	v, ok := m.Get()
	if !ok {
		return ""
	}

	return csvFloat(v)
}

// Write adds the rows of the summaries.
func (c *CSVWriter) Write(summaries []flow.Summary) error {
	for _, s := range summaries {
		err := c.csvWriter.Write([]string{
			c.runID,
			strconv.FormatUint(uint64(s.ID), 10),
			s.Key.Src.String(),
			strconv.Itoa(int(s.Key.SrcPort)),
			s.Key.Dst.String(),
			strconv.Itoa(int(s.Key.DstPort)),
			s.Key.Protocol.String(),
			strconv.FormatUint(s.TxPackets, 10),
			strconv.FormatUint(s.TxBytes, 10),
			strconv.FormatUint(s.RxPackets, 10),
			strconv.FormatUint(s.RxBytes, 10),
			strconv.FormatUint(s.LostPackets, 10),
			csvFloat(s.TimeFirstTx),
			csvFloat(s.TimeLastRx),
			csvMetric(s.Duration),
			csvMetric(s.ThroughputBps),
			csvMetric(s.RxThroughputBps),
			csvMetric(s.AverageDelay),
			csvMetric(s.AverageJitter),
			csvMetric(s.LossRatio),
		})
		if err != nil {
			return fmt.Errorf("flow %d: %w", s.ID, err)
		}
	}

	return nil
}

// Flush writes the buffered rows.
func (c *CSVWriter) Flush() error {
	c.csvWriter.Flush()
	return c.csvWriter.Error()
}

// Close flushes and closes the file. Closing twice does nothing.
func (c *CSVWriter) Close() error {
	if err := c.Flush(); err != nil {
		return err
	}

	if c.file == nil {
		return nil
	}

	err := c.file.Close()
	c.file = nil

	return err
}
