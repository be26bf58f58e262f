// internal/config/config.go
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	BaseURL string `mapstructure:"base_url"`
	Port    string `mapstructure:"port"`

	Database struct {
		URL     string        `mapstructure:"url"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"database"`

	Approval struct {
		Secret   string        `mapstructure:"secret"`
		Issuer   string        `mapstructure:"issuer"`
		Audience string        `mapstructure:"audience"`
		TokenTTL time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"approval"`

	Email struct {
		Provider        string        `mapstructure:"provider"`
		APIKey          string        `mapstructure:"api_key"`
		Endpoint        string        `mapstructure:"endpoint"`
		From            string        `mapstructure:"from"`
		Timeout         time.Duration `mapstructure:"timeout"`
		BreakerFailures uint32        `mapstructure:"breaker_failures"`
		BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
	} `mapstructure:"email"`

	CORS struct {
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	} `mapstructure:"cors"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("database.timeout", 10*time.Second)
	v.SetDefault("approval.issuer", "roam-admin")
	v.SetDefault("approval.audience", "roam-provider-onboarding")
	v.SetDefault("approval.token_ttl", 7*24*time.Hour)
	v.SetDefault("email.provider", "Resend")
	v.SetDefault("email.endpoint", "https://api.resend.com")
	v.SetDefault("email.from", "ROAM <notifications@roamyourbestlife.com>")
	v.SetDefault("email.timeout", 10*time.Second)
	v.SetDefault("email.breaker_failures", 5)
	v.SetDefault("email.breaker_cooldown", 30*time.Second)
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173", "http://localhost:3000"})
}

func bindEnv(v *viper.Viper) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// explicit bindings
	_ = v.BindEnv("base_url", "BASE_URL")
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("database.timeout", "DATABASE_TIMEOUT")
	_ = v.BindEnv("approval.secret", "APPROVAL_TOKEN_SECRET")
	_ = v.BindEnv("approval.issuer", "APPROVAL_TOKEN_ISSUER")
	_ = v.BindEnv("approval.audience", "APPROVAL_TOKEN_AUDIENCE")
	_ = v.BindEnv("approval.token_ttl", "APPROVAL_TOKEN_TTL")
	_ = v.BindEnv("email.api_key", "RESEND_API_KEY")
	_ = v.BindEnv("email.from", "EMAIL_FROM")
	_ = v.BindEnv("email.endpoint", "EMAIL_ENDPOINT")
	_ = v.BindEnv("email.timeout", "EMAIL_TIMEOUT")
	_ = v.BindEnv("cors.allowed_origins", "CORS_ALLOWED_ORIGINS")
}

// Read builds a Config from config.yaml (in . or ..) and the environment
// without validating it.
func Read(v *viper.Viper) (Config, error) {
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	_ = v.ReadInConfig()

	bindEnv(v)

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, err
	}
	c.CORS.AllowedOrigins = splitOrigins(c.CORS.AllowedOrigins)
	return c, nil
}

// env values arrive as one comma separated string
func splitOrigins(in []string) []string {
	var out []string
	for _, s := range in {
		for _, o := range strings.Split(s, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
	}
	return out
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.BaseURL) == "" {
		errs = append(errs, errors.New("base_url/BASE_URL required"))
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		errs = append(errs, errors.New("database.url/DATABASE_URL required"))
	}
	if strings.TrimSpace(c.Approval.Secret) == "" {
		errs = append(errs, errors.New("approval.secret/APPROVAL_TOKEN_SECRET required"))
	}
	return errors.Join(errs...)
}

func Load() Config {
	c, err := Read(viper.GetViper())
	if err != nil {
		panic("config error: " + err.Error())
	}
	if err := c.Validate(); err != nil {
		panic("config error: " + err.Error())
	}
	return c
}
