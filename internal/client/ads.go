package client

import (
	"context"
	"net/http"

	"github.com/IVANFROL/reklama-oleg/internal/apierr"
	"github.com/IVANFROL/reklama-oleg/internal/models"
)

func (c *Client) ListAds(ctx context.Context) ([]models.Ad, error) {
	var ads []models.Ad
	if err := c.do(ctx, call{op: "ads.list", method: http.MethodGet, path: "/ads", auth: true}, &ads); err != nil {
		return nil, err
	}
	if ads == nil {
		ads = []models.Ad{}
	}
	return ads, nil
}

// ViewAd claims the reward for viewing ad adID. A second view of the same ad
// on the same day fails with a conflict.
func (c *Client) ViewAd(ctx context.Context, adID int64) (models.AdView, error) {
	body, err := jsonBody(models.ViewAdRequest{AdID: adID})
	if err != nil {
		return models.AdView{}, err
	}
	var v models.AdView
	err = c.do(ctx, call{
		op:          "ads.view",
		method:      http.MethodPost,
		path:        "/ads/view",
		body:        body,
		contentType: "application/json",
		auth:        true,
		hint:        apierr.KindConflict,
	}, &v)
	return v, err
}
