package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/warp/inventory-ledger/ledger"
)

// ReadFile dispatches on the file extension: .csv, .yaml or .yml.
func ReadFile(path string) ([]ledger.BulkLine, []ledger.BulkFailure, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(f)
	case ".yaml", ".yml":
		return ReadYAML(f)
	default:
		return nil, nil, fmt.Errorf("unsupported file type %q (want .csv, .yaml or .yml)", filepath.Ext(path))
	}
}

// ReadCSV reads sku,qty records, with or without a header row.
func ReadCSV(r io.Reader) ([]ledger.BulkLine, []ledger.BulkFailure, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows [][]interface{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read csv: %w", err)
		}
		row := make([]interface{}, len(record))
		for i, v := range record {
			row[i] = v
		}
		rows = append(rows, row)
	}

	lines, failures := ParseRows(rows)
	return lines, failures, nil
}

type yamlDoc struct {
	Lines []yamlLine `yaml:"lines"`
}

type yamlLine struct {
	SKU       string      `yaml:"sku"`
	TargetQty interface{} `yaml:"target_qty"`
}

// ReadYAML reads either a top-level list or a document with a `lines` key:
//
//	lines:
//	  - sku: TSHIRT-RED-M
//	    target_qty: 12
func ReadYAML(r io.Reader) ([]ledger.BulkLine, []ledger.BulkFailure, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read yaml: %w", err)
	}

	var items []yamlLine
	if err := yaml.Unmarshal(data, &items); err != nil {
		var doc yamlDoc
		if docErr := yaml.Unmarshal(data, &doc); docErr != nil {
			return nil, nil, fmt.Errorf("parse yaml: %w", docErr)
		}
		items = doc.Lines
	}

	rows := make([][]interface{}, 0, len(items)+1)
	rows = append(rows, []interface{}{"sku", "target_qty"})
	for _, item := range items {
		rows = append(rows, []interface{}{item.SKU, item.TargetQty})
	}

	// Row numbers are item positions; the synthetic header is row 0.
	lines, failures := parseRows(rows, 0)
	return lines, failures, nil
}
