package writer

import (
	"Go2AQMSpectra/internal/codec"
	"Go2AQMSpectra/internal/model"
	"Go2AQMSpectra/internal/snapshot"
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
)

// scalar names the per-sample single-value files.
type scalar struct {
	name  string
	value func(s *model.Sample) uint64
}

var scalars = []scalar{
	{"rate_ecn", func(s *model.Sample) uint64 { return s.Totals[model.ECN].Rate }},
	{"rate_nonecn", func(s *model.Sample) uint64 { return s.Totals[model.NonECN].Rate }},
	{"rate", func(s *model.Sample) uint64 { return s.Totals[model.ECN].Rate + s.Totals[model.NonECN].Rate }},
	{"drops_ecn", func(s *model.Sample) uint64 { return s.Totals[model.ECN].Drops }},
	{"drops_nonecn", func(s *model.Sample) uint64 { return s.Totals[model.NonECN].Drops }},
	{"marks_ecn", func(s *model.Sample) uint64 { return s.Totals[model.ECN].Marks }},
	{"packets_ecn", func(s *model.Sample) uint64 { return s.Totals[model.ECN].Packets }},
	{"packets_nonecn", func(s *model.Sample) uint64 { return s.Totals[model.NonECN].Packets }},
}

// series names the per-flow files written at the end of the session.
type series struct {
	name  string
	class model.Class
	value func(d model.FlowData) uint64
}

var flowSeries = []series{
	{"flows_rate_ecn", model.ECN, func(d model.FlowData) uint64 { return d.Rate }},
	{"flows_rate_nonecn", model.NonECN, func(d model.FlowData) uint64 { return d.Rate }},
	{"flows_drops_ecn", model.ECN, func(d model.FlowData) uint64 { return uint64(d.Drops) }},
	{"flows_drops_nonecn", model.NonECN, func(d model.FlowData) uint64 { return uint64(d.Drops) }},
	{"flows_marks_ecn", model.ECN, func(d model.FlowData) uint64 { return uint64(d.Marks) }},
}

// output is one buffered output file.
type output struct {
	file *os.File
	buf  *bufio.Writer
}

func createOutput(dir, name string) (*output, error) {
	filePath := filepath.Join(dir, name)
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file '%s': %w", filePath, err)
	}
	return &output{file: file, buf: bufio.NewWriter(file)}, nil
}

func (o *output) close() error {
	if err := o.buf.Flush(); err != nil {
		o.file.Close()
		return err
	}
	return o.file.Close()
}

// TextWriter writes the whitespace-separated tables read by the offline
// analysis tools, one directory per session.
type TextWriter struct {
	dir     string
	packets [model.NumCodepoints]*output
	drops   [model.NumCodepoints]*output
	scalars []*output
	line    []byte
}

// NewTextWriter creates every per-sample file in dir and writes the
// histogram headers. Failing to create a file is a setup error.
func NewTextWriter(dir string, delays *codec.DelayTable) (*TextWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	w := &TextWriter{dir: dir}

	header := strconv.AppendInt(nil, codec.QSLimit, 10)
	for _, d := range delays {
		header = append(header, ' ')
		header = strconv.AppendUint(header, uint64(d), 10)
	}
	header = append(header, '\n')

	for cp := model.ECN00; cp < model.NumCodepoints; cp++ {
		var err error
		if w.packets[cp], err = w.open("queue_packets_"+cp.String(), header); err != nil {
			w.Close()
			return nil, err
		}
		if w.drops[cp], err = w.open("queue_drops_"+cp.String(), header); err != nil {
			w.Close()
			return nil, err
		}
	}
	for _, sc := range scalars {
		o, err := w.open(sc.name, nil)
		if err != nil {
			w.Close()
			return nil, err
		}
		w.scalars = append(w.scalars, o)
	}
	return w, nil
}

func (w *TextWriter) open(name string, header []byte) (*output, error) {
	o, err := createOutput(w.dir, name)
	if err != nil {
		return nil, err
	}
	if _, err := o.buf.Write(header); err != nil {
		o.close()
		return nil, fmt.Errorf("failed to write header of '%s': %w", name, err)
	}
	return o, nil
}

// Name implements model.Writer.
func (w *TextWriter) Name() string {
	return "text"
}

// WriteSample appends one line to every per-sample file and flushes them,
// so no file ever holds part of a sample.
func (w *TextWriter) WriteSample(s *model.Sample) error {
	for cp := model.ECN00; cp < model.NumCodepoints; cp++ {
		if err := w.writeHistogram(w.packets[cp], s.TimeMs, s.Packets[cp]); err != nil {
			return err
		}
		if err := w.writeHistogram(w.drops[cp], s.TimeMs, s.Drops[cp]); err != nil {
			return err
		}
	}
	for i, sc := range scalars {
		l := strconv.AppendInt(w.line[:0], int64(s.ID), 10)
		l = append(l, ' ')
		l = strconv.AppendUint(l, s.TimeMs, 10)
		l = append(l, ' ')
		l = strconv.AppendUint(l, sc.value(s), 10)
		l = append(l, '\n')
		w.line = l
		if err := w.emit(w.scalars[i], l); err != nil {
			return err
		}
	}
	return nil
}

func (w *TextWriter) writeHistogram(o *output, ms uint64, counts []uint32) error {
	l := strconv.AppendUint(w.line[:0], ms, 10)
	for i := 0; i < codec.QSLimit; i++ {
		var c uint32
		if i < len(counts) {
			c = counts[i]
		}
		l = append(l, ' ')
		l = strconv.AppendUint(l, uint64(c), 10)
	}
	l = append(l, '\n')
	w.line = l
	return w.emit(o, l)
}

func (w *TextWriter) emit(o *output, line []byte) error {
	if _, err := o.buf.Write(line); err != nil {
		return fmt.Errorf("failed to write to '%s': %w", o.file.Name(), err)
	}
	if err := o.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush '%s': %w", o.file.Name(), err)
	}
	return nil
}

// Finish writes the per-flow series, the flow legends and the session
// snapshot.
func (w *TextWriter) Finish(r *model.Report) error {
	if r.Flows != nil {
		for _, fs := range flowSeries {
			if err := w.writeSeries(fs, r.Flows); err != nil {
				return err
			}
		}
		for c := model.NonECN; c < model.NumClasses; c++ {
			if err := w.writeLegend("flows_"+c.String(), r.Flows.Series[c]); err != nil {
				return err
			}
		}
	}
	if err := snapshot.Write(w.dir, r); err != nil {
		return err
	}
	log.Printf("Wrote per-flow tables for %d ecn and %d nonecn flows to %s",
		flowCount(r, model.ECN), flowCount(r, model.NonECN), w.dir)
	return nil
}

func flowCount(r *model.Report, c model.Class) int {
	if r.Flows == nil {
		return 0
	}
	return len(r.Flows.Series[c])
}

func (w *TextWriter) writeSeries(fs series, t *model.FlowTables) (err error) {
	o, err := createOutput(w.dir, fs.name)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := o.close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close '%s': %w", fs.name, cerr)
		}
	}()

	flows := t.Series[fs.class]
	for i, ms := range t.SampleTimes {
		l := strconv.AppendInt(w.line[:0], int64(i), 10)
		l = append(l, ' ')
		l = strconv.AppendUint(l, ms, 10)
		for _, f := range flows {
			var v uint64
			if i < len(f.Samples) {
				v = fs.value(f.Samples[i])
			}
			l = append(l, ' ')
			l = strconv.AppendUint(l, v, 10)
		}
		l = append(l, '\n')
		w.line = l
		if _, err := o.buf.Write(l); err != nil {
			return fmt.Errorf("failed to write to '%s': %w", fs.name, err)
		}
	}
	return nil
}

func (w *TextWriter) writeLegend(name string, flows []model.FlowSeries) (err error) {
	o, err := createOutput(w.dir, name)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := o.close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close '%s': %w", name, cerr)
		}
	}()

	for _, f := range flows {
		k := f.Key
		if _, err := fmt.Fprintf(o.buf, "%s %s %d %s %d\n", k.ProtoName(), k.SrcIP, k.SrcPort, k.DstIP, k.DstPort); err != nil {
			return fmt.Errorf("failed to write to '%s': %w", name, err)
		}
	}
	return nil
}

// Close flushes and closes the per-sample files.
func (w *TextWriter) Close() error {
	var firstErr error
	closeOutput := func(o *output) {
		if o == nil {
			return
		}
		if err := o.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for cp := range w.packets {
		closeOutput(w.packets[cp])
		closeOutput(w.drops[cp])
		w.packets[cp], w.drops[cp] = nil, nil
	}
	for _, o := range w.scalars {
		closeOutput(o)
	}
	w.scalars = nil
	return firstErr
}
