package gdrive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

// Drive permission values for "anyone with the link can read".
const (
	permissionRoleReader = "reader"
	permissionTypeAnyone = "anyone"
)

type permissionRequest struct {
	Role string `json:"role"`
	Type string `json:"type"`
}

// GrantPublicRead makes the file readable by anyone holding its link.
// Any non-2xx status is returned as *APIError.
func (c *Client) GrantPublicRead(ctx context.Context, itemID string) error {
	if itemID == "" {
		return fmt.Errorf("gdrive: grant permission: item id must not be empty")
	}

	c.logger.Info("granting public read", slog.String("item_id", itemID))

	body, err := json.Marshal(permissionRequest{Role: permissionRoleReader, Type: permissionTypeAnyone})
	if err != nil {
		return fmt.Errorf("gdrive: marshaling permission: %w", err)
	}

	u := c.endpoints.FilesURL + "/" + url.PathEscape(itemID) + "/permissions"

	req, err := newRequest(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.do(req)
	if err != nil {
		return err
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return readError(resp)
	}

	drain(resp)

	return nil
}

// ShareLink returns the browser link for a Drive file. With direct set, the
// link downloads the file instead of opening the Drive viewer.
func ShareLink(itemID string, direct bool) string {
	if direct {
		return "https://drive.google.com/uc?export=download&id=" + url.QueryEscape(itemID)
	}

	return "https://drive.google.com/file/d/" + url.PathEscape(itemID)
}
