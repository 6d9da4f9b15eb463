package governance

import (
	"gopkg.in/yaml.v3"

	"github.com/nooterra/trustcore/pkg/errs"
)

// templateDocument is the YAML fixture/config shape LoadTemplateYAML
// decodes before handing the fields to BuildTemplate. It is a decode
// convenience only: the evaluation algorithm in Evaluate is the one
// fixed algorithm spec §4.8 describes, never compiled from this
// document.
type templateDocument struct {
	TemplateID                   string         `yaml:"templateId"`
	PerActionUSDCents            int64          `yaml:"perActionUsdCents"`
	MonthlyUSDCents              int64          `yaml:"monthlyUsdCents"`
	AllowedDataClasses           []string       `yaml:"allowedDataClasses"`
	AllowExternalTransfer        bool           `yaml:"allowExternalTransfer"`
	Tiers                        []ApprovalTier `yaml:"tiers"`
	RequireApprovalForRiskLevels []string       `yaml:"requireApprovalForRiskLevels"`
	AutoBlockRiskLevels          []string       `yaml:"autoBlockRiskLevels"`
}

// LoadTemplateYAML decodes a governance policy template from YAML
// (test fixtures and local tooling, not a runtime config path per
// spec §6) and normalizes it through BuildTemplate.
func LoadTemplateYAML(raw []byte) (*Template, error) {
	var doc templateDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errs.Wrap("GOVERNANCE_TEMPLATE_YAML_INVALID", "failed to parse governance template YAML", err)
	}
	return BuildTemplate(TemplateInput{
		TemplateID:                   doc.TemplateID,
		PerActionUSDCents:            doc.PerActionUSDCents,
		MonthlyUSDCents:              doc.MonthlyUSDCents,
		AllowedDataClasses:           doc.AllowedDataClasses,
		AllowExternalTransfer:        doc.AllowExternalTransfer,
		Tiers:                        doc.Tiers,
		RequireApprovalForRiskLevels: doc.RequireApprovalForRiskLevels,
		AutoBlockRiskLevels:          doc.AutoBlockRiskLevels,
	})
}
