package detect

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"argus/core"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// ruleDocumentSchema describes one rule document in either layout
const ruleDocumentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "title"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "title": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "severity": {"type": "string"},
    "level": {"type": "string"},
    "status": {"type": "string"},
    "author": {"type": "string"},
    "selection": {"$ref": "#/definitions/selection"},
    "detection": {
      "type": "object",
      "properties": {"selection": {"$ref": "#/definitions/selection"}}
    },
    "frequency": {
      "type": "object",
      "properties": {
        "window_duration": {"type": "string"},
        "time_window": {"type": "string"},
        "threshold": {"type": "integer", "minimum": 1},
        "group_by": {"type": "string", "minLength": 1}
      }
    }
  },
  "definitions": {
    "selection": {
      "type": "object",
      "additionalProperties": {"type": ["string", "number", "integer", "boolean"]}
    }
  }
}`

var (
	ruleSchema   = mustCompileSchema(ruleDocumentSchema)
	ruleValidate = validator.New(validator.WithRequiredStructEnabled())
)

func mustCompileSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("invalid rule schema: %v", err))
	}
	return schema
}

// SkippedDocument records a rule document that was not loaded
type SkippedDocument struct {
	File      string
	Index     int
	RuleID    string
	Reason    string
	Duplicate bool
}

// LoadReport is the outcome of scanning a rule directory
type LoadReport struct {
	Dir     string
	Files   int
	Rules   []*core.RuleDefinition
	Skipped []SkippedDocument
}

// ScanRules reads every *.yml / *.yaml file in dir in file-name order and
// returns the rules that parsed, in load order. Malformed documents and
// duplicate IDs are reported in Skipped; the first occurrence of an ID wins.
// An unreadable directory is the only error and wraps core.ErrLoad.
func ScanRules(dir string) (*LoadReport, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: rules directory %s: %v", core.ErrLoad, dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: rules source %s is not a directory", core.ErrLoad, dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: rules directory %s: %v", core.ErrLoad, dir, err)
	}

	report := &LoadReport{Dir: dir}
	seen := make(map[string]string)

	for _, entry := range entries {
		if entry.IsDir() || !isRuleFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		report.Files++

		data, err := os.ReadFile(path)
		if err != nil {
			report.Skipped = append(report.Skipped, SkippedDocument{File: path, Reason: err.Error()})
			continue
		}

		docs, err := parseRuleDocuments(path, data)
		for _, d := range docs {
			if d.err != nil {
				report.Skipped = append(report.Skipped, SkippedDocument{File: path, Index: d.index, RuleID: d.id, Reason: d.err.Error()})
				continue
			}
			if first, dup := seen[d.rule.ID]; dup {
				report.Skipped = append(report.Skipped, SkippedDocument{
					File:      path,
					Index:     d.index,
					RuleID:    d.rule.ID,
					Reason:    fmt.Sprintf("duplicate rule id, already loaded from %s", first),
					Duplicate: true,
				})
				continue
			}
			seen[d.rule.ID] = path
			report.Rules = append(report.Rules, d.rule)
		}
		if err != nil {
			report.Skipped = append(report.Skipped, SkippedDocument{File: path, Index: len(docs), Reason: err.Error()})
		}
	}
	return report, nil
}

// ParseRuleDocument parses and validates a single rule document
func ParseRuleDocument(data []byte) (*core.RuleDefinition, error) {
	docs, err := parseRuleDocuments("", data)
	if err != nil {
		return nil, err
	}
	if len(docs) != 1 {
		return nil, fmt.Errorf("%w: expected one rule document, found %d", core.ErrLoad, len(docs))
	}
	if docs[0].err != nil {
		return nil, docs[0].err
	}
	return docs[0].rule, nil
}

type parsedDocument struct {
	index int
	id    string
	rule  *core.RuleDefinition
	err   error
}

// parseRuleDocuments decodes every YAML document in data. A syntax error
// ends the stream, since the decoder cannot resynchronise, and is returned
// alongside the documents decoded before it.
func parseRuleDocuments(source string, data []byte) ([]parsedDocument, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var out []parsedDocument

	for index := 0; ; index++ {
		var node yaml.Node
		if err := dec.Decode(&node); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, fmt.Errorf("%w: yaml: %v", core.ErrLoad, err)
		}
		if len(node.Content) == 0 || (node.Content[0].Kind == yaml.ScalarNode && node.Content[0].Tag == "!!null") {
			continue
		}
		rule, id, err := decodeRuleNode(&node, source)
		out = append(out, parsedDocument{index: index, id: id, rule: rule, err: err})
	}
}

func decodeRuleNode(node *yaml.Node, source string) (*core.RuleDefinition, string, error) {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return nil, "", fmt.Errorf("%w: %v", core.ErrLoad, err)
	}
	if _, ok := raw.(map[string]any); !ok {
		return nil, "", fmt.Errorf("%w: rule document must be a mapping", core.ErrLoad)
	}

	var doc core.RuleDocument
	if err := node.Decode(&doc); err != nil {
		return nil, "", fmt.Errorf("%w: %v", core.ErrLoad, err)
	}

	result, err := ruleSchema.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return nil, doc.ID, fmt.Errorf("%w: schema: %v", core.ErrLoad, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, doc.ID, fmt.Errorf("%w: schema: %s", core.ErrLoad, strings.Join(msgs, "; "))
	}

	if err := ruleValidate.Struct(doc); err != nil {
		return nil, doc.ID, fmt.Errorf("%w: %v", core.ErrLoad, err)
	}

	rule, err := normalizeDocument(doc, source)
	if err != nil {
		return nil, doc.ID, err
	}
	return rule, doc.ID, nil
}

// normalizeDocument maps either document layout onto a RuleDefinition
func normalizeDocument(doc core.RuleDocument, source string) (*core.RuleDefinition, error) {
	sevName := doc.Severity
	if sevName == "" {
		sevName = doc.Level
	}
	if sevName == "" {
		return nil, fmt.Errorf("%w: rule %s has no severity", core.ErrLoad, doc.ID)
	}
	severity, err := core.ParseSeverity(sevName)
	if err != nil {
		return nil, fmt.Errorf("%w: rule %s: %v", core.ErrLoad, doc.ID, err)
	}

	selection := doc.Selection
	if len(selection) == 0 && doc.Detection != nil {
		selection = doc.Detection.Selection
	}
	if len(selection) == 0 {
		return nil, fmt.Errorf("%w: rule %s has an empty selection", core.ErrLoad, doc.ID)
	}
	for field, value := range selection {
		if _, err := core.Canonical(value); err != nil {
			return nil, fmt.Errorf("%w: rule %s selection %s: %v", core.ErrLoad, doc.ID, field, err)
		}
	}

	rule := &core.RuleDefinition{
		ID:          doc.ID,
		Title:       doc.Title,
		Description: doc.Description,
		Severity:    severity,
		Selection:   selection,
		Status:      doc.Status,
		Author:      doc.Author,
		Source:      source,
	}

	if f := doc.Frequency; f != nil {
		freq := &core.Frequency{
			Window:    core.DefaultFrequencyWindow,
			Threshold: f.Threshold,
			GroupBy:   f.GroupBy,
		}
		window := f.WindowDuration
		if window == "" {
			window = f.TimeWindow
		}
		if window != "" {
			if freq.Window, err = core.ParseWindow(window); err != nil {
				return nil, fmt.Errorf("%w: rule %s window: %v", core.ErrLoad, doc.ID, err)
			}
		}
		if freq.Window <= 0 {
			return nil, fmt.Errorf("%w: rule %s window must be positive", core.ErrLoad, doc.ID)
		}
		if freq.Threshold == 0 {
			freq.Threshold = core.DefaultThreshold
		}
		if freq.GroupBy == "" {
			freq.GroupBy = core.DefaultGroupBy
		}
		rule.Frequency = freq
	}
	return rule, nil
}

func isRuleFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yml" || ext == ".yaml"
}
