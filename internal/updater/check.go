package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const checkPath = "/v1/updates/check"

// UpdateInfo is the update server's answer to a check request
type UpdateInfo struct {
	IsAvailable bool   `json:"isAvailable"`
	Label       string `json:"label,omitempty"`
	AppVersion  string `json:"appVersion,omitempty"`
	PackageHash string `json:"packageHash,omitempty"`
	PackageSize int64  `json:"packageSize,omitempty"`
	DownloadURL string `json:"downloadUrl,omitempty"`
	IsMandatory bool   `json:"isMandatory,omitempty"`
	Description string `json:"description,omitempty"`
}

type checkResponse struct {
	UpdateInfo *UpdateInfo `json:"updateInfo"`
}

type checkRequest struct {
	deploymentKey string
	appVersion    string
	packageHash   string
	clientID      string
}

func (u *Updater) checkURL(req checkRequest) (string, error) {
	base, err := url.Parse(strings.TrimSuffix(u.endpoint, "/") + checkPath)
	if err != nil {
		return "", fmt.Errorf("invalid update server endpoint: %w", err)
	}
	q := base.Query()
	q.Set("deploymentKey", req.deploymentKey)
	q.Set("appVersion", req.appVersion)
	if req.packageHash != "" {
		q.Set("packageHash", req.packageHash)
	}
	q.Set("clientId", req.clientID)
	base.RawQuery = q.Encode()
	return base.String(), nil
}

func (u *Updater) checkForUpdate(ctx context.Context, req checkRequest) (*UpdateInfo, error) {
	checkURL, err := u.checkURL(req)
	if err != nil {
		return nil, err
	}

	data, err := u.client.Get(ctx, checkURL)
	if err != nil {
		return nil, fmt.Errorf("failed to check for update: %w", err)
	}

	var resp checkResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode update check response: %w", err)
	}
	if resp.UpdateInfo == nil {
		return nil, fmt.Errorf("update check response has no updateInfo")
	}
	if resp.UpdateInfo.IsAvailable {
		if resp.UpdateInfo.DownloadURL == "" {
			return nil, fmt.Errorf("update %q has no download URL", resp.UpdateInfo.Label)
		}
		if resp.UpdateInfo.PackageHash == "" {
			return nil, fmt.Errorf("update %q has no package hash", resp.UpdateInfo.Label)
		}
	}
	return resp.UpdateInfo, nil
}
