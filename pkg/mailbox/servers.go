package mailbox

import (
	"errors"
	"sort"
	"strings"
)

// DefaultPort is the implicit TLS IMAP port assumed when a trigger names a host but no port.
const DefaultPort = 993

// ErrUnknownProvider is returned when no host is configured and the address domain is not known.
var ErrUnknownProvider = errors.New("Unknown IMAP server")

// Server is an IMAP endpoint.
type Server struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

var knownServers = map[string]Server{
	"gmail.com":      {Host: "imap.gmail.com", Port: 993},
	"googlemail.com": {Host: "imap.gmail.com", Port: 993},
	"mail.ru":        {Host: "imap.mail.ru", Port: 993},
	"inbox.ru":       {Host: "imap.mail.ru", Port: 993},
	"list.ru":        {Host: "imap.mail.ru", Port: 993},
	"bk.ru":          {Host: "imap.mail.ru", Port: 993},
	"yahoo.com":      {Host: "imap.mail.yahoo.com", Port: 993},
	"yandex.ru":      {Host: "imap.yandex.ru", Port: 993},
	"yandex.com":     {Host: "imap.yandex.ru", Port: 993},
	"ya.ru":          {Host: "imap.yandex.ru", Port: 993},
	"outlook.com":    {Host: "outlook.office365.com", Port: 993},
	"hotmail.com":    {Host: "outlook.office365.com", Port: 993},
	"live.com":       {Host: "outlook.office365.com", Port: 993},
	"icloud.com":     {Host: "imap.mail.me.com", Port: 993},
	"me.com":         {Host: "imap.mail.me.com", Port: 993},
	// Proton only offers IMAP through the local bridge.
	"protonmail.com": {Host: "127.0.0.1", Port: 1143},
	"proton.me":      {Host: "127.0.0.1", Port: 1143},
	"zoho.com":       {Host: "imap.zoho.com", Port: 993},
	"aol.com":        {Host: "imap.aol.com", Port: 993},
	"gmx.com":        {Host: "imap.gmx.com", Port: 993},
	"gmx.net":        {Host: "imap.gmx.net", Port: 993},
}

// LookupServer returns the IMAP server for the domain of an email address.
func LookupServer(email string) (Server, bool) {
	_, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" {
		return Server{}, false
	}

	s, ok := knownServers[strings.ToLower(strings.TrimSpace(domain))]

	return s, ok
}

// KnownServer is one entry of the provider table.
type KnownServer struct {
	Domain string `json:"domain"`
	Server
}

// KnownServers lists the provider table sorted by domain.
func KnownServers() []KnownServer {
	out := make([]KnownServer, 0, len(knownServers))
	for domain, s := range knownServers {
		out = append(out, KnownServer{Domain: domain, Server: s})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })

	return out
}

// ResolveServer uses the explicit host when set, falling back to the provider table.
func ResolveServer(email, host string, port int) (Server, error) {
	if host = strings.TrimSpace(host); host != "" {
		if port <= 0 {
			port = DefaultPort
		}

		return Server{Host: host, Port: port}, nil
	}

	s, ok := LookupServer(email)
	if !ok {
		return Server{}, ErrUnknownProvider
	}

	return s, nil
}
