package salesforce

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	InstanceURL string `json:"instance_url"`
	TokenType   string `json:"token_type,omitempty"`
	IssuedAt    string `json:"issued_at,omitempty"`
}

// Credentials for the OAuth2 password grant.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	TokenURL     string
}
