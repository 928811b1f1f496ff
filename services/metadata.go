package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"zako_server/geo"
	"zako_server/models"
	"zako_server/utils"
)

// GeoLookup resolves a public address. *geo.Client satisfies it.
type GeoLookup interface {
	Lookup(ctx context.Context, ip string) (geo.Location, error)
}

// MetadataCollector captures what is recorded about a visitor at registration.
type MetadataCollector struct {
	Geo GeoLookup // nil disables lookups
	Log *zap.Logger
}

// Collect never fails: lookup problems degrade to the unknown placeholders.
func (c *MetadataCollector) Collect(ctx context.Context, remoteAddress, userAgent string) models.ContextMetadata {
	meta := models.ContextMetadata{
		RemoteAddress: remoteAddress,
		UserAgent:     userAgent,
		DetectedOS:    utils.DetectOS(userAgent),
		GeoLocation:   models.UnknownLocation,
		ISP:           models.UnknownISP,
		DisplayName:   models.DefaultDisplayName,
	}

	switch {
	case !utils.ValidIP(remoteAddress):
		meta.RemoteAddress = models.InvalidIPAddress
	case !utils.IsPublicIP(remoteAddress):
		meta.GeoLocation = models.LANLocation
	case c.Geo != nil:
		loc, err := c.Geo.Lookup(ctx, remoteAddress)
		if err != nil {
			degraded := &Error{Kind: KindTransientExternal, Code: CodeGeoLookupDegraded, Message: "geolocation unavailable", Err: err}
			c.logger().Warn("Geolocation lookup failed, using placeholders",
				zap.String("ip", remoteAddress), zap.Error(degraded))
			break
		}
		applyLocation(&meta, loc)
	}
	return meta
}

func applyLocation(meta *models.ContextMetadata, loc geo.Location) {
	prov := strings.TrimSpace(loc.Province)
	if prov != "" {
		meta.DisplayName = "来自" + prov + strings.TrimSpace(loc.City) + "的Zako"
	}
	if display := loc.Display(); display != "" {
		meta.GeoLocation = display
	}
	if isp := strings.TrimSpace(loc.ISP); isp != "" {
		meta.ISP = isp
	}
}

func (c *MetadataCollector) logger() *zap.Logger {
	if c.Log == nil {
		return zap.L()
	}
	return c.Log
}
