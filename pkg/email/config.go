package email

// Config holds email delivery settings.
// Without a Postmark server token the service falls back to DevSender.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL" envDefault:"billing@localhost"`
	SupportEmail         string `env:"SUPPORT_EMAIL"`
	DevOutputDir         string `env:"EMAIL_DEV_DIR" envDefault:"./tmp/emails"`
}

// UsesPostmark reports whether delivery credentials are configured.
func (c Config) UsesPostmark() bool {
	return c.PostmarkServerToken != ""
}

// NewSender returns a Postmark sender when a server token is configured and a
// DevSender writing to DevOutputDir otherwise.
func NewSender(cfg Config) (EmailSender, error) {
	if cfg.UsesPostmark() {
		return NewPostmarkClient(cfg)
	}
	return NewDevSender(cfg.DevOutputDir), nil
}
