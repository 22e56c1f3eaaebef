package entity

import (
	"fmt"
	"strings"
)

// Canonical CRM field names.
const (
	FieldEnquiryType       = "Enquiry_Type"
	FieldFirstname         = "Firstname"
	FieldLastname          = "Lastname"
	FieldMobile            = "Mobile"
	FieldEmail             = "Email"
	FieldDealerCode        = "DealerCode"
	FieldShowroom          = "Shrm_SvCtr"
	FieldMake              = "Make"
	FieldLine              = "Line"
	FieldEntryForm         = "Entry_Form"
	FieldMarket            = "Market"
	FieldCampaignSource    = "Campaign_Source"
	FieldCampaignName      = "Campaign_Name"
	FieldCampaignMedium    = "Campaign_Medium"
	FieldTestDriveType     = "TestDriveType"
	FieldExtendedPrivacy   = "Extended_Privacy"
	FieldPurchaseTimeFrame = "Purchase_TimeFrame"
	FieldSourceSite        = "Source_Site"
	FieldMarketingConsent  = "Marketing_Communication_Consent"
	FieldFund              = "Fund"
	FieldFormCode          = "FormCode"
	FieldRequestOrigin     = "Request_Origin"
	FieldMasterKey         = "MasterKey"
)

// LeadFields is the column order used whenever a lead is persisted.
var LeadFields = []string{
	FieldEnquiryType,
	FieldFirstname,
	FieldLastname,
	FieldMobile,
	FieldEmail,
	FieldDealerCode,
	FieldShowroom,
	FieldMake,
	FieldLine,
	FieldEntryForm,
	FieldMarket,
	FieldCampaignSource,
	FieldCampaignName,
	FieldCampaignMedium,
	FieldTestDriveType,
	FieldExtendedPrivacy,
	FieldPurchaseTimeFrame,
	FieldSourceSite,
	FieldMarketingConsent,
	FieldFund,
	FieldFormCode,
	FieldRequestOrigin,
	FieldMasterKey,
}

// RequiredLeadFields must be present before a lead is sent anywhere.
var RequiredLeadFields = []string{FieldFirstname, FieldLastname, FieldMobile, FieldEmail}

// LeadRecord is the flat payload understood by the CRM.
type LeadRecord map[string]string

// IsLeadField reports whether name is one of the canonical fields.
func IsLeadField(name string) bool {
	for _, f := range LeadFields {
		if f == name {
			return true
		}
	}
	return false
}

func (l LeadRecord) Get(field string) string {
	if l == nil {
		return ""
	}
	return l[field]
}

// Clone returns a copy restricted to the canonical fields.
func (l LeadRecord) Clone() LeadRecord {
	out := make(LeadRecord, len(l))
	for k, v := range l {
		if IsLeadField(k) {
			out[k] = v
		}
	}
	return out
}

// Values returns the field values in LeadFields order.
func (l LeadRecord) Values() []string {
	values := make([]string, len(LeadFields))
	for i, f := range LeadFields {
		values[i] = l[f]
	}
	return values
}

// Channel is the marketing source a lead event came from.
type Channel string

const (
	ChannelWeb       Channel = "web"
	ChannelTikTok    Channel = "tiktok"
	ChannelSnapchat  Channel = "snapchat"
	ChannelGoogleAds Channel = "google_ads"
)

var Channels = []Channel{ChannelWeb, ChannelTikTok, ChannelSnapchat, ChannelGoogleAds}

// ParseChannel accepts the channel name in any case; an empty name means web.
func ParseChannel(s string) (Channel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "web", "form":
		return ChannelWeb, nil
	case "tiktok":
		return ChannelTikTok, nil
	case "snapchat", "snap":
		return ChannelSnapchat, nil
	case "google_ads", "googleads", "google":
		return ChannelGoogleAds, nil
	}
	return "", fmt.Errorf("unknown channel %q", s)
}
