package models

import "mailaudit/internal/lookup"

type SPFMechanism struct {
	Qualifier   string `json:"qualifier"`
	Mechanism   string `json:"mechanism"`
	Description string `json:"description"`
}

type SPFAllMechanism struct {
	Qualifier string `json:"qualifier"`
	Policy    string `json:"policy"`
}

type SPFRecord struct {
	Domain         string           `json:"domain"`
	HasSPF         bool             `json:"has_spf"`
	IsValid        bool             `json:"is_valid"`
	SPFVersion     string           `json:"spf_version,omitempty"`
	Raw            string           `json:"raw"`
	Mechanisms     []SPFMechanism   `json:"mechanisms"`
	AllMechanism   *SPFAllMechanism `json:"all_mechanism"`
	DNSLookupCount int              `json:"dns_lookup_count"`
	Warnings       []string         `json:"warnings"`
	Errors         []string         `json:"errors"`
}

type SPFExplanation struct {
	Mechanisms []SPFMechanism `json:"mechanisms"`
	Policy     string         `json:"policy"`
}

type GeneratedSPF struct {
	Domain            string         `json:"domain"`
	SPFRecord         string         `json:"spf_record"`
	DNSRecord         string         `json:"dns_record"`
	DNSLookupCount    int            `json:"dns_lookup_count"`
	Warnings          []string       `json:"warnings"`
	Explanation       SPFExplanation `json:"explanation"`
	InstallationSteps []string       `json:"installation_steps"`
}

type DMARCAlignment struct {
	DKIM string `json:"dkim"`
	SPF  string `json:"spf"`
}

type DMARCRecord struct {
	Domain          string         `json:"domain"`
	HasDMARC        bool           `json:"has_dmarc"`
	IsValid         bool           `json:"is_valid"`
	Raw             string         `json:"raw"`
	Policy          string         `json:"policy"`
	SubdomainPolicy string         `json:"subdomain_policy"`
	Percentage      int            `json:"percentage"`
	RUA             []string       `json:"rua"`
	RUF             []string       `json:"ruf"`
	Alignment       DMARCAlignment `json:"alignment"`
	Warnings        []string       `json:"warnings"`
	Errors          []string       `json:"errors"`
}

type TXTCategory string

const (
	CategorySPF          TXTCategory = "spf"
	CategoryDMARC        TXTCategory = "dmarc"
	CategoryDKIM         TXTCategory = "dkim"
	CategoryVerification TXTCategory = "verification"
	CategoryOther        TXTCategory = "other"
)

// ClassifiedTXT is one TXT value and the bucket it landed in. Type is the
// display label: the record kind, or the provider for verification tokens.
type ClassifiedTXT struct {
	Record      string      `json:"record"`
	Category    TXTCategory `json:"category"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
}

type TXTClassification struct {
	Domain       string          `json:"domain"`
	HasTXT       bool            `json:"has_txt"`
	TXTRecords   []string        `json:"txt_records"`
	RecordCount  int             `json:"record_count"`
	SPF          []ClassifiedTXT `json:"spf"`
	DMARC        []ClassifiedTXT `json:"dmarc"`
	DKIM         []ClassifiedTXT `json:"dkim"`
	Verification []ClassifiedTXT `json:"verification"`
	Other        []ClassifiedTXT `json:"other"`
	Warnings     []string        `json:"warnings"`
	Errors       []string        `json:"errors"`
}

// DNSSnapshot is a point-in-time capture of a domain's records. SoftErrors
// records failures of optional types that were not a plain "no such record".
type DNSSnapshot struct {
	Domain       string            `json:"domain"`
	ARecords     []string          `json:"a_records"`
	AAAARecords  []string          `json:"aaaa_records"`
	MXRecords    []lookup.MXRecord `json:"mx_records"`
	TXTRecords   []string          `json:"txt_records"`
	CNAMERecords []string          `json:"cname_records"`
	NSRecords    []string          `json:"ns_records"`
	SOARecord    *lookup.SOARecord `json:"soa_record"`
	Errors       []string          `json:"errors"`
	SoftErrors   map[string]string `json:"soft_errors,omitempty"`
}

// DNSRecordResult answers a single record-type query.
type DNSRecordResult struct {
	Domain     string `json:"domain"`
	RecordType string `json:"record_type"`
	Records    []any  `json:"records"`
	Error      string `json:"error,omitempty"`
}

type BlacklistStatus string

const (
	Listed  BlacklistStatus = "listed"
	Clean   BlacklistStatus = "clean"
	Unknown BlacklistStatus = "unknown"
)

type BlacklistResult struct {
	Name     string          `json:"name"`
	Host     string          `json:"host"`
	Type     string          `json:"type"`
	Status   BlacklistStatus `json:"status"`
	IsListed bool            `json:"is_listed"`
	Checked  bool            `json:"checked"`
	Error    string          `json:"error,omitempty"`
}

type BlacklistStats struct {
	TotalChecked int `json:"total_checked"`
	ListedCount  int `json:"listed_count"`
	CleanCount   int `json:"clean_count"`
	UnknownCount int `json:"unknown_count"`
}

type BlacklistReport struct {
	Target         string            `json:"ip_or_domain"`
	TargetType     string            `json:"target_type"`
	Results        []BlacklistResult `json:"results"`
	ListedCount    int               `json:"listed_count"`
	CleanCount     int               `json:"clean_count"`
	Stats          BlacklistStats    `json:"stats"`
	Recommendation string            `json:"recommendation"`
}
