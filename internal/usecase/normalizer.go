package usecase

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/xavierca1/lead-relay/internal/entity"
)

// Purchase time frames accepted by the CRM.
const (
	TimeFrameWithinMonth   = "Within 1 month"
	TimeFrameOneToThree    = "1-3 months"
	TimeFrameMoreThanThree = "More than 3 months"
)

// DefaultLeadValues are the dealer and product constants sent with every lead that does not
// carry its own value.
var DefaultLeadValues = map[string]string{
	entity.FieldEnquiryType:      "Book_a_Test_Drive",
	entity.FieldDealerCode:       "PTC",
	entity.FieldShowroom:         "PETROMIN Jubail",
	entity.FieldMake:             "Jeep",
	entity.FieldLine:             "Wrangler",
	entity.FieldEntryForm:        "EN",
	entity.FieldMarket:           "Saudi Arabia",
	entity.FieldCampaignMedium:   "Boopin",
	entity.FieldTestDriveType:    "In Showroom",
	entity.FieldExtendedPrivacy:  "true",
	entity.FieldMarketingConsent: "1",
	entity.FieldFund:             "DD",
	entity.FieldFormCode:         "PET_Q2_25",
	entity.FieldRequestOrigin:    "https://www.jeep-saudi.com",
	entity.FieldMasterKey:        "Jeep_EN_GENERIC_RI:RP:TD_0_8_1_6_50_42",
}

var channelSources = map[entity.Channel]string{
	entity.ChannelWeb:       "Website",
	entity.ChannelTikTok:    "TikTok",
	entity.ChannelSnapchat:  "Snapchat",
	entity.ChannelGoogleAds: "Google",
}

// commonAliases maps squashed inbound keys to canonical fields for every channel.
var commonAliases = map[string]string{
	"fname":                  entity.FieldFirstname,
	"first":                  entity.FieldFirstname,
	"givenname":              entity.FieldFirstname,
	"lname":                  entity.FieldLastname,
	"last":                   entity.FieldLastname,
	"surname":                entity.FieldLastname,
	"familyname":             entity.FieldLastname,
	"phone":                  entity.FieldMobile,
	"phonenumber":            entity.FieldMobile,
	"mobilenumber":           entity.FieldMobile,
	"mobilephone":            entity.FieldMobile,
	"tel":                    entity.FieldMobile,
	"telephone":              entity.FieldMobile,
	"emailaddress":           entity.FieldEmail,
	"mail":                   entity.FieldEmail,
	"source":                 entity.FieldCampaignSource,
	"utmsource":              entity.FieldCampaignSource,
	"campaign":               entity.FieldCampaignName,
	"utmcampaign":            entity.FieldCampaignName,
	"medium":                 entity.FieldCampaignMedium,
	"utmmedium":              entity.FieldCampaignMedium,
	"timeframe":              entity.FieldPurchaseTimeFrame,
	"purchasetime":           entity.FieldPurchaseTimeFrame,
	"whenplanningtopurchase": entity.FieldPurchaseTimeFrame,
	"showroom":               entity.FieldShowroom,
	"model":                  entity.FieldLine,
}

var channelAliases = map[entity.Channel]map[string]string{
	entity.ChannelTikTok: {
		"campaignname": entity.FieldCampaignName,
		"adname":       entity.FieldCampaignName,
		"phonenum":     entity.FieldMobile,
	},
	entity.ChannelSnapchat: {
		"campaignname": entity.FieldCampaignName,
		"adsquadname":  entity.FieldCampaignName,
	},
	entity.ChannelGoogleAds: {
		"campaignid":  entity.FieldCampaignName,
		"userphone":   entity.FieldMobile,
		"useremail":   entity.FieldEmail,
		"phonenumber": entity.FieldMobile,
	},
}

// fullNameKeys hold a single name that is split when first and last names are missing.
var fullNameKeys = []string{"fullname", "name"}

var timeFrames = map[string]string{
	"within 1 month":     TimeFrameWithinMonth,
	"within a month":     TimeFrameWithinMonth,
	"less than 1 month":  TimeFrameWithinMonth,
	"less than a month":  TimeFrameWithinMonth,
	"1 month":            TimeFrameWithinMonth,
	"immediately":        TimeFrameWithinMonth,
	"خلال شهر":           TimeFrameWithinMonth,
	"خلال شهر واحد":      TimeFrameWithinMonth,
	"أقل من شهر":         TimeFrameWithinMonth,
	"1-3 months":         TimeFrameOneToThree,
	"1 - 3 months":       TimeFrameOneToThree,
	"1 to 3 months":      TimeFrameOneToThree,
	"within 3 months":    TimeFrameOneToThree,
	"2-3 months":         TimeFrameOneToThree,
	"1-3 أشهر":           TimeFrameOneToThree,
	"من 1 إلى 3 أشهر":    TimeFrameOneToThree,
	"خلال 3 أشهر":        TimeFrameOneToThree,
	"من شهر إلى 3 أشهر":  TimeFrameOneToThree,
	"more than 3 months": TimeFrameMoreThanThree,
	"3+ months":          TimeFrameMoreThanThree,
	"later":              TimeFrameMoreThanThree,
	"not sure":           TimeFrameMoreThanThree,
	"أكثر من 3 أشهر":     TimeFrameMoreThanThree,
	"أكثر من ثلاثة أشهر": TimeFrameMoreThanThree,
}

// Normalizer maps channel payloads onto the canonical lead fields.
type Normalizer struct {
	defaults map[string]string
}

// NewNormalizer returns a Normalizer using DefaultLeadValues with overrides applied on top.
func NewNormalizer(overrides map[string]string) *Normalizer {
	defaults := make(map[string]string, len(DefaultLeadValues)+len(overrides))
	for k, v := range DefaultLeadValues {
		defaults[k] = v
	}
	for k, v := range overrides {
		if entity.IsLeadField(k) {
			defaults[k] = v
		}
	}
	return &Normalizer{defaults: defaults}
}

// Normalize builds the CRM payload for raw. It returns a *entity.RejectionError when a
// required identity field is missing or blank.
func (n *Normalizer) Normalize(channel entity.Channel, raw map[string]any) (entity.LeadRecord, error) {
	flat := flatten(channel, raw)
	lead := make(entity.LeadRecord, len(entity.LeadFields))

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// Aliases first, then exact canonical names so an explicit field always wins.
	for _, k := range keys {
		if field, ok := aliasFor(channel, squash(k)); ok && flat[k] != "" {
			lead[field] = flat[k]
		}
	}
	for _, k := range keys {
		if field, ok := canonicalFor(squash(k)); ok && flat[k] != "" {
			lead[field] = flat[k]
		}
	}

	if lead[entity.FieldFirstname] == "" && lead[entity.FieldLastname] == "" {
		for _, k := range keys {
			if containsString(fullNameKeys, squash(k)) && flat[k] != "" {
				lead[entity.FieldFirstname], lead[entity.FieldLastname] = splitName(flat[k])
				break
			}
		}
	}

	n.applyDefaults(channel, lead)

	if err := validateRequired(lead); err != nil {
		return nil, err
	}
	return lead, nil
}

func (n *Normalizer) applyDefaults(channel entity.Channel, lead entity.LeadRecord) {
	for k, v := range n.defaults {
		if lead[k] == "" {
			lead[k] = v
		}
	}
	if lead[entity.FieldCampaignSource] == "" {
		lead[entity.FieldCampaignSource] = channelSources[channel]
	}
	if lead[entity.FieldSourceSite] == "" && lead[entity.FieldCampaignSource] != "" {
		lead[entity.FieldSourceSite] = strings.ToLower(lead[entity.FieldCampaignSource]) + " Ads"
	}
	lead[entity.FieldPurchaseTimeFrame] = TranslateTimeFrame(lead[entity.FieldPurchaseTimeFrame])
}

// TranslateTimeFrame maps a free-text purchase horizon onto the CRM values. Unknown or empty
// values become TimeFrameMoreThanThree.
func TranslateTimeFrame(s string) string {
	key := strings.ToLower(strings.Join(strings.Fields(s), " "))
	if v, ok := timeFrames[key]; ok {
		return v
	}
	for _, v := range []string{TimeFrameWithinMonth, TimeFrameOneToThree, TimeFrameMoreThanThree} {
		if strings.EqualFold(key, v) {
			return v
		}
	}
	return TimeFrameMoreThanThree
}

func validateRequired(lead entity.LeadRecord) error {
	rules := make([]*validation.KeyRules, 0, len(entity.RequiredLeadFields))
	for _, f := range entity.RequiredLeadFields {
		rules = append(rules, validation.Key(f, validation.Required))
	}
	err := validation.Validate(map[string]string(lead), validation.Map(rules...).AllowExtraKeys())
	if err == nil {
		return nil
	}

	var missing []string
	for _, f := range entity.RequiredLeadFields {
		if strings.TrimSpace(lead[f]) == "" {
			missing = append(missing, f)
		}
	}
	return &entity.RejectionError{Fields: missing, Err: err}
}

// flatten turns raw into string values keyed by the inbound names. Google Ads lead forms
// carry their answers in user_column_data.
func flatten(channel entity.Channel, raw map[string]any) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := scalar(v); ok {
			out[k] = s
		}
	}
	if channel != entity.ChannelGoogleAds {
		return out
	}
	columns, _ := raw["user_column_data"].([]any)
	for _, c := range columns {
		col, ok := c.(map[string]any)
		if !ok {
			continue
		}
		id, _ := col["column_id"].(string)
		if id == "" {
			id, _ = col["column_name"].(string)
		}
		value, ok := scalar(col["string_value"])
		if id == "" || !ok {
			continue
		}
		out[id] = value
	}
	return out
}

func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return strings.TrimSpace(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case int, int64:
		return fmt.Sprint(t), true
	}
	return "", false
}

func aliasFor(channel entity.Channel, key string) (string, bool) {
	if field, ok := channelAliases[channel][key]; ok {
		return field, true
	}
	field, ok := commonAliases[key]
	return field, ok
}

var canonicalKeys = func() map[string]string {
	m := make(map[string]string, len(entity.LeadFields))
	for _, f := range entity.LeadFields {
		m[squash(f)] = f
	}
	return m
}()

func canonicalFor(key string) (string, bool) {
	field, ok := canonicalKeys[key]
	return field, ok
}

// squash lowercases s and strips separators so "First_Name" and "first-name" compare equal.
func squash(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch r {
		case '_', '-', ' ', '.':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
