// Package starfile reads and writes the STAR tables used by RELION and Warp
// for particle metadata.
package starfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrMissingColumn is returned when a requested column is not in the table
var ErrMissingColumn = errors.New("missing column")

// ErrNoTable is returned when a file holds no usable data block
var ErrNoTable = errors.New("no table in STAR file")

// Block is one data_ block. Loop blocks fill Columns and Rows, simple
// blocks fill Values.
type Block struct {
	Name    string
	Columns []string
	Rows    [][]string
	Values  map[string]string
}

// IsLoop reports whether the block holds a table
func (b *Block) IsLoop() bool {
	return len(b.Columns) > 0
}

// Len returns the number of rows
func (b *Block) Len() int {
	return len(b.Rows)
}

// Has reports whether the block has a column with the given name
func (b *Block) Has(name string) bool {
	return b.index(name) >= 0
}

func (b *Block) index(name string) int {
	name = strings.TrimPrefix(name, "_")
	for i, c := range b.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns the raw values of a column in row order
func (b *Block) Column(name string) ([]string, error) {
	idx := b.index(name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
	}
	values := make([]string, len(b.Rows))
	for i, row := range b.Rows {
		values[i] = row[idx]
	}
	return values, nil
}

// Float returns a column parsed as float64 in row order
func (b *Block) Float(name string) ([]float64, error) {
	raw, err := b.Column(name)
	if err != nil {
		return nil, err
	}
	values := make([]float64, len(raw))
	for i, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("column %s row %d: %w", name, i, err)
		}
		values[i] = v
	}
	return values, nil
}

// File is a parsed STAR file
type File struct {
	Blocks []*Block
}

// Block returns the block with the given name (without the data_ prefix)
func (f *File) Block(name string) *Block {
	for _, b := range f.Blocks {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// Particles returns the particle table: the "particles" loop block when
// present, otherwise the first loop block in the file
func (f *File) Particles() (*Block, error) {
	if b := f.Block("particles"); b != nil && b.IsLoop() {
		return b, nil
	}
	for _, b := range f.Blocks {
		if b.IsLoop() {
			return b, nil
		}
	}
	return nil, ErrNoTable
}

// Parse reads a STAR document from r
func Parse(r io.Reader) (*File, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	f := &File{}
	var current *Block
	inLoop := false
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		switch {
		case strings.HasPrefix(line, "data_"):
			current = &Block{Name: strings.TrimPrefix(line, "data_"), Values: map[string]string{}}
			f.Blocks = append(f.Blocks, current)
			inLoop = false

		case line == "loop_":
			if current == nil {
				return nil, fmt.Errorf("line %d: loop_ outside a data block", lineNo)
			}
			inLoop = true

		case strings.HasPrefix(line, "_"):
			if current == nil {
				return nil, fmt.Errorf("line %d: label outside a data block", lineNo)
			}
			fields := tokenize(line)
			label := strings.TrimPrefix(fields[0], "_")
			if inLoop && len(current.Rows) == 0 {
				// "_rlnCoordinateX #1" style column header
				current.Columns = append(current.Columns, label)
			} else {
				inLoop = false
				value := ""
				if len(fields) > 1 {
					value = fields[1]
				}
				current.Values[label] = value
			}

		default:
			if current == nil || !inLoop || len(current.Columns) == 0 {
				return nil, fmt.Errorf("line %d: data outside a loop", lineNo)
			}
			fields := tokenize(line)
			if len(fields) != len(current.Columns) {
				return nil, fmt.Errorf("line %d: expected %d fields, got %d", lineNo, len(current.Columns), len(fields))
			}
			current.Rows = append(current.Rows, fields)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

// tokenize splits a line on whitespace, honouring single and double quotes
func tokenize(line string) []string {
	var fields []string
	var sb strings.Builder
	var quote rune
	inField := false

	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				sb.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inField = true
		case r == ' ' || r == '\t':
			if inField {
				fields = append(fields, sb.String())
				sb.Reset()
				inField = false
			}
		default:
			sb.WriteRune(r)
			inField = true
		}
	}
	if inField {
		fields = append(fields, sb.String())
	}
	return fields
}

// Read parses the STAR file at path
func Read(path string) (*File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	f, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Write saves blocks to path in STAR format
func Write(path string, blocks ...*Block) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for _, b := range blocks {
		fmt.Fprintf(w, "\ndata_%s\n\n", b.Name)
		if b.IsLoop() {
			fmt.Fprintln(w, "loop_")
			for i, c := range b.Columns {
				fmt.Fprintf(w, "_%s #%d\n", c, i+1)
			}
			for _, row := range b.Rows {
				fmt.Fprintln(w, strings.Join(row, "\t"))
			}
		} else {
			for k, v := range b.Values {
				fmt.Fprintf(w, "_%s\t%s\n", k, v)
			}
		}
		fmt.Fprintln(w)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return file.Close()
}

// ReadParticles returns the particle table of the STAR file at path
func ReadParticles(path string) (*Block, error) {
	f, err := Read(path)
	if err != nil {
		return nil, err
	}
	b, err := f.Particles()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}
