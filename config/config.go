package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Debug                    bool   `envconfig:"debug"`
	Port                     int    `envconfig:"port"`
	Env                      string `envconfig:"env"`
	MessagingBaseURL         string `envconfig:"messaging_base_url"`
	MessagingTimeoutSeconds  int    `envconfig:"messaging_timeout_seconds"`
	CurrentUserID            string `envconfig:"current_user_id"`
	CurrentUserEmail         string `envconfig:"current_user_email"`
	PostgresHost             string `envconfig:"postgres_host"`
	PostgresUser             string `envconfig:"postgres_user"`
	PostgresDB               string `envconfig:"postgres_db"`
	PostgresPort             int    `envconfig:"postgres_port"`
	PostgresPassword         string `envconfig:"postgres_password"`
	MailgunApiKey            string `envconfig:"mg_public_api_key"`
	MgDomain                 string `envconfig:"mg_domain"`
	MgEmailFrom              string `envconfig:"email_from"`
	AccessControlAllowOrigin string `envconfig:"access_control_allow_origin"`
}

func Load() (*Config, error) {
	env := os.Getenv("GIN_MODE")
	if env != "release" {
		if err := godotenv.Load("./.env"); err != nil {
			log.Printf("couldn't load env vars: %v", err)
		}
	}

	c := &Config{}
	err := envconfig.Process("talentlink", c)
	if err != nil {
		return nil, err
	}
	if c.MessagingTimeoutSeconds == 0 {
		c.MessagingTimeoutSeconds = 15
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	return c, nil
}
