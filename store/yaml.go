package store

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// YAMLTemplate reads the template configuration from a YAML file instead of
// a sheet:
//
//	subject: Quarterly update
//	sender_name: Jane from Acme
//	reply_mode: ReplyTo
//	original_subject: Kick-off
type YAMLTemplate struct {
	Path string
}

type yamlTemplate struct {
	Subject           string `yaml:"subject"`
	SenderName        string `yaml:"sender_name"`
	AdditionalTo      string `yaml:"additional_to"`
	CC                string `yaml:"cc"`
	BCC               string `yaml:"bcc"`
	ReplyMode         string `yaml:"reply_mode"`
	IncludeRecipients bool   `yaml:"include_recipients"`
	OriginalSubject   string `yaml:"original_subject"`
	OriginalTo        string `yaml:"original_to"`
}

// TemplateSheet renders the file in the sheet layout so both sources share
// one parser.
func (y YAMLTemplate) TemplateSheet(ctx context.Context) ([][]string, error) {
	data, err := os.ReadFile(y.Path)
	if err != nil {
		return nil, fmt.Errorf("read template file: %w", err)
	}

	var t yamlTemplate
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse template file %s: %w", y.Path, err)
	}

	return templateRows([]string{
		t.Subject,
		t.SenderName,
		t.AdditionalTo,
		t.CC,
		t.BCC,
		t.ReplyMode,
		strconv.FormatBool(t.IncludeRecipients),
		t.OriginalSubject,
		t.OriginalTo,
	}), nil
}

// TemplateLabels names the rows of the template sheet, in order.
var TemplateLabels = []string{
	"Subject",
	"Sender Name",
	"Additional To",
	"CC",
	"BCC",
	"Reply Mode",
	"Include Recipients",
	"Original Subject",
	"Original To",
}

func templateRows(values []string) [][]string {
	rows := make([][]string, len(TemplateLabels))
	for i, label := range TemplateLabels {
		value := ""
		if i < len(values) {
			value = values[i]
		}
		rows[i] = []string{label, value}
	}
	return rows
}
