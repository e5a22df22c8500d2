// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package geo resolves spotter IP addresses from the cluster feed to a
// country and region using a MaxMind GeoLite2-City database. The lookup is
// optional; the watcher runs without it when no database is configured.
package geo

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/oschwald/geoip2-golang"
)

// Reader wraps a GeoLite2-City database reader
type Reader struct {
	city *geoip2.Reader
}

// Open opens the City database at the given path
func Open(cityPath string) (*Reader, error) {
	db, err := geoip2.Open(cityPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open City database: %w", err)
	}
	return &Reader{city: db}, nil
}

// Close closes the database reader
func (r *Reader) Close() error {
	if r.city == nil {
		return nil
	}
	return r.city.Close()
}

// Origin returns the country ISO code and English region name for an IP.
// An address absent from the database yields empty strings, not an error.
func (r *Reader) Origin(ip netip.Addr) (country, region string, err error) {
	record, err := r.city.City(net.IP(ip.AsSlice()))
	if err != nil {
		return "", "", fmt.Errorf("geo lookup failed: %w", err)
	}

	country = record.Country.IsoCode
	if len(record.Subdivisions) > 0 {
		region = record.Subdivisions[0].Names["en"]
	}
	return country, region, nil
}
