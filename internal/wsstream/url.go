// url.go builds the websocket endpoint URLs for the platform's streaming API.
package wsstream

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Target identifies the pod (and optionally container) a stream attaches to.
// A changed target is always a new connection, never a mutation of a live one.
type Target struct {
	Organization string
	Cluster      string
	Namespace    string
	Deployment   string
	Pod          string
	Container    string
}

// Validate reports whether the target can address a pod-scoped stream.
func (t Target) Validate() error {
	switch {
	case strings.TrimSpace(t.Cluster) == "":
		return fmt.Errorf("target cluster must be specified")
	case strings.TrimSpace(t.Namespace) == "":
		return fmt.Errorf("target namespace must be specified")
	case strings.TrimSpace(t.Pod) == "":
		return fmt.Errorf("target pod must be specified")
	}
	return nil
}

// wsBase parses the configured API endpoint and rewrites its scheme for
// websocket use: https becomes wss, http becomes ws.
func wsBase(endpoint string) (*url.URL, error) {
	base, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	switch base.Scheme {
	case "https", "wss":
		base.Scheme = "wss"
	case "http", "ws":
		base.Scheme = "ws"
	default:
		return nil, fmt.Errorf("endpoint %q: unsupported scheme %q", endpoint, base.Scheme)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("endpoint %q: missing host", endpoint)
	}
	return base, nil
}

func (t Target) podPath() string {
	var b strings.Builder
	b.WriteString("/ws/v1/clusters/")
	b.WriteString(url.PathEscape(t.Cluster))
	b.WriteString("/namespaces/")
	b.WriteString(url.PathEscape(t.Namespace))
	if t.Deployment != "" {
		b.WriteString("/deployments/")
		b.WriteString(url.PathEscape(t.Deployment))
	}
	b.WriteString("/pods/")
	b.WriteString(url.PathEscape(t.Pod))
	return b.String()
}

func (t Target) baseQuery() url.Values {
	q := url.Values{}
	if t.Organization != "" {
		q.Set("organization_name", t.Organization)
	}
	q.Set("pod_name", t.Pod)
	if t.Container != "" {
		q.Set("container_name", t.Container)
	}
	return q
}

// TailURL addresses the container log tail stream for the target.
func TailURL(endpoint string, t Target, tailLines int64, follow bool) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	base, err := wsBase(endpoint)
	if err != nil {
		return "", err
	}
	q := t.baseQuery()
	q.Set("tail_lines", strconv.FormatInt(tailLines, 10))
	q.Set("follow", strconv.FormatBool(follow))
	base.Path += t.podPath() + "/tail"
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// EventsURL addresses the Kubernetes event snapshot stream. The pod is
// optional: when empty the stream covers the whole namespace.
func EventsURL(endpoint string, t Target) (string, error) {
	if strings.TrimSpace(t.Cluster) == "" {
		return "", fmt.Errorf("target cluster must be specified")
	}
	if strings.TrimSpace(t.Namespace) == "" {
		return "", fmt.Errorf("target namespace must be specified")
	}
	base, err := wsBase(endpoint)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	if t.Organization != "" {
		q.Set("organization_name", t.Organization)
	}
	if t.Pod != "" {
		q.Set("pod_name", t.Pod)
	}
	base.Path += "/ws/v1/clusters/" + url.PathEscape(t.Cluster) +
		"/namespaces/" + url.PathEscape(t.Namespace) + "/events"
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// TerminalURL addresses the interactive shell stream. debug attaches a debug
// container; fork spins up an ephemeral copy of the pod first.
func TerminalURL(endpoint string, t Target, debug, fork bool) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	base, err := wsBase(endpoint)
	if err != nil {
		return "", err
	}
	q := t.baseQuery()
	if debug {
		q.Set("debug", "true")
	}
	if fork {
		q.Set("fork", "true")
	}
	base.Path += t.podPath() + "/terminal"
	base.RawQuery = q.Encode()
	return base.String(), nil
}
