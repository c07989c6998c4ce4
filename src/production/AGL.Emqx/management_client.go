package emqx

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	config "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Config"
	logger "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Logger"
)

const authenticatorUsersPath = "/api/v5/authentication/password_based:built_in_database/users"

type credentialBody struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

// ManagementClient talks to the broker's management API to mirror device
// tokens into its built-in authentication database. It implements the
// provisioning service's CredentialSync.
type ManagementClient struct {
	httpClient *resty.Client
	log        *logger.Logger
}

func NewManagementClient(cfg config.EmqxConfig, log *logger.Logger) *ManagementClient {
	client := resty.New().
		SetBaseURL(cfg.APIBaseURL).
		SetTimeout(cfg.Timeout).
		SetBasicAuth(cfg.APIKey, cfg.APISecret).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &ManagementClient{
		httpClient: client,
		log:        log.WithComponent("emqx-mgmt"),
	}
}

// UpsertDeviceCredential creates or replaces the broker credential for a
// device. The broker username is device:{id}.
func (c *ManagementClient) UpsertDeviceCredential(ctx context.Context, deviceID, deviceToken string) error {
	username := deviceUsernamePrefix + deviceID

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]string{"password": deviceToken}).
		Put(authenticatorUsersPath + "/" + username)
	if err != nil {
		return fmt.Errorf("emqx update credential %s: %w", username, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		resp, err = c.httpClient.R().
			SetContext(ctx).
			SetBody(credentialBody{UserID: username, Password: deviceToken}).
			Post(authenticatorUsersPath)
		if err != nil {
			return fmt.Errorf("emqx create credential %s: %w", username, err)
		}
	}
	if resp.IsError() {
		return fmt.Errorf("emqx credential upsert %s: status %d: %s", username, resp.StatusCode(), resp.String())
	}

	c.log.WithDevice(deviceID).Debug("broker credential synced")
	return nil
}

// RemoveDeviceCredential deletes the broker credential for a device. A
// missing credential is not an error.
func (c *ManagementClient) RemoveDeviceCredential(ctx context.Context, deviceID string) error {
	username := deviceUsernamePrefix + deviceID

	resp, err := c.httpClient.R().
		SetContext(ctx).
		Delete(authenticatorUsersPath + "/" + username)
	if err != nil {
		return fmt.Errorf("emqx delete credential %s: %w", username, err)
	}
	if resp.IsError() && resp.StatusCode() != http.StatusNotFound {
		return fmt.Errorf("emqx credential delete %s: status %d: %s", username, resp.StatusCode(), resp.String())
	}

	c.log.WithDevice(deviceID).Debug("broker credential removed")
	return nil
}
