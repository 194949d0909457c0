package util

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

const MaxURLLength = 2048

var validate *validator.Validate

var discordCDNHosts = []string{"cdn.discordapp.com", "media.discordapp.net"}

var privateNets []*net.IPNet

func init() {
	cidrs := []string{
		"127.0.0.0/8",
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"0.0.0.0/8",
		"169.254.0.0/16",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, _ := net.ParseCIDR(cidr)
		privateNets = append(privateNets, network)
	}

	validate = validator.New()
	_ = validate.RegisterValidation("safe_url", validateSafeURL)
}

// Validator returns the shared validator with the safe_url tag registered.
func Validator() *validator.Validate {
	return validate
}

// ValidateURL checks that rawURL is an http(s) URL that does not point at a
// private or loopback address.
func ValidateURL(rawURL string) error {
	if err := validate.Var(rawURL, "required,max=2048,safe_url"); err != nil {
		return fmt.Errorf("invalid URL %q: %w", truncate(rawURL, 80), err)
	}
	return nil
}

// IsDiscordCDN reports whether rawURL is served by Discord's attachment CDN.
func IsDiscordCDN(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme != "https" {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	for _, h := range discordCDNHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func validateSafeURL(fl validator.FieldLevel) bool {
	parsed, err := url.Parse(fl.Field().String())
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return !isPrivateHost(strings.ToLower(parsed.Hostname()))
}

func isPrivateIP(ip net.IP) bool {
	for _, network := range privateNets {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// Host names are not resolved here; yt-dlp and Cobalt do their own lookups.
func isPrivateHost(hostname string) bool {
	if hostname == "" || hostname == "localhost" || strings.HasSuffix(hostname, ".localhost") {
		return true
	}
	if ip := net.ParseIP(strings.Trim(hostname, "[]")); ip != nil {
		return isPrivateIP(ip)
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
