package scenario

import (
	"fmt"
	"regexp"

	networkingv1 "k8s.io/api/networking/v1"
)

// Protocol selects how a probe checks connectivity.
type Protocol string

const (
	ProtocolHTTP Protocol = "http"
	ProtocolTCP  Protocol = "tcp"
)

// Expectation is the outcome a probe is expected to observe.
type Expectation string

const (
	ExpectAllow Expectation = "allow"
	ExpectDeny  Expectation = "deny"
)

const (
	// DefaultImage is used for pods that do not declare an image. Client pods
	// (no port) get a sleep command so they stay up for exec.
	DefaultImage = "nicolaka/netshoot"

	// DefaultProbeTimeoutSeconds bounds a single connectivity check.
	DefaultProbeTimeoutSeconds = 2
)

// Scenario is one self-contained conformance test case: topology, policies
// and expected connectivity outcomes. It is pure data; execution never
// mutates it.
type Scenario struct {
	ID         string          `json:"id"`
	Namespaces []NamespaceSpec `json:"namespaces"`
	Pods       []PodSpec       `json:"pods"`
	Policies   []PolicySpec    `json:"policies,omitempty"`
	Probes     []ProbeSpec     `json:"probes"`
}

// NamespaceSpec declares a namespace by scenario-local alias. The runtime
// namespace name is generated per run so concurrent scenarios never collide.
type NamespaceSpec struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
}

// PodSpec declares a labeled pod in one of the scenario's namespaces.
// A pod with a port serves on it with the image's default entrypoint; a pod
// without a port is a client and is kept alive with a sleep command.
type PodSpec struct {
	Name      string            `json:"name"`
	Namespace string            `json:"namespace"`
	Labels    map[string]string `json:"labels,omitempty"`
	Image     string            `json:"image,omitempty"`
	Port      int               `json:"port,omitempty"`
}

// PolicySpec wraps a NetworkPolicy body. The orchestrator treats the spec as
// opaque data for the policy engine; it never interprets selectors itself.
type PolicySpec struct {
	Name      string                         `json:"name"`
	Namespace string                         `json:"namespace"`
	Spec      networkingv1.NetworkPolicySpec `json:"spec"`
}

// PodRef names a pod declared in the same scenario.
type PodRef struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

func (r PodRef) String() string {
	return r.Namespace + "/" + r.Name
}

// ProbeSpec is a single connectivity check with an expected outcome. Exactly
// one of To and ToAddress must be set; ToAddress targets an endpoint outside
// the scenario (e.g. an external IP).
type ProbeSpec struct {
	From           PodRef      `json:"from"`
	To             *PodRef     `json:"to,omitempty"`
	ToAddress      string      `json:"toAddress,omitempty"`
	Protocol       Protocol    `json:"protocol"`
	Port           int         `json:"port"`
	Expect         Expectation `json:"expect"`
	TimeoutSeconds int         `json:"timeoutSeconds,omitempty"`
}

// Destination renders the probe target for messages.
func (p ProbeSpec) Destination() string {
	if p.To != nil {
		return p.To.String()
	}
	return p.ToAddress
}

var idPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// ApplyDefaults fills per-field defaults in place.
func (s *Scenario) ApplyDefaults() {
	for i := range s.Pods {
		if s.Pods[i].Image == "" {
			s.Pods[i].Image = DefaultImage
		}
	}
	for i := range s.Probes {
		if s.Probes[i].TimeoutSeconds <= 0 {
			s.Probes[i].TimeoutSeconds = DefaultProbeTimeoutSeconds
		}
	}
}

// Validate checks internal reference integrity: every pod's namespace, every
// policy's namespace and every probe's pod refs must be declared within the
// scenario.
func (s *Scenario) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("scenario id must not be empty")
	}
	if !idPattern.MatchString(s.ID) {
		return fmt.Errorf("scenario id %q must be a lowercase DNS label", s.ID)
	}

	namespaces := map[string]bool{}
	for _, ns := range s.Namespaces {
		if ns.Name == "" {
			return fmt.Errorf("scenario %s: namespace with empty name", s.ID)
		}
		if namespaces[ns.Name] {
			return fmt.Errorf("scenario %s: duplicate namespace %q", s.ID, ns.Name)
		}
		namespaces[ns.Name] = true
	}

	pods := map[PodRef]bool{}
	for _, pod := range s.Pods {
		if pod.Name == "" {
			return fmt.Errorf("scenario %s: pod with empty name", s.ID)
		}
		if !namespaces[pod.Namespace] {
			return fmt.Errorf("scenario %s: pod %q references undeclared namespace %q", s.ID, pod.Name, pod.Namespace)
		}
		ref := PodRef{Namespace: pod.Namespace, Name: pod.Name}
		if pods[ref] {
			return fmt.Errorf("scenario %s: duplicate pod %s", s.ID, ref)
		}
		pods[ref] = true
	}

	for _, policy := range s.Policies {
		if policy.Name == "" {
			return fmt.Errorf("scenario %s: policy with empty name", s.ID)
		}
		if !namespaces[policy.Namespace] {
			return fmt.Errorf("scenario %s: policy %q references undeclared namespace %q", s.ID, policy.Name, policy.Namespace)
		}
	}

	for i, probe := range s.Probes {
		if !pods[probe.From] {
			return fmt.Errorf("scenario %s: probe %d source %s not declared", s.ID, i, probe.From)
		}
		if probe.To == nil && probe.ToAddress == "" {
			return fmt.Errorf("scenario %s: probe %d needs a destination pod or address", s.ID, i)
		}
		if probe.To != nil && probe.ToAddress != "" {
			return fmt.Errorf("scenario %s: probe %d declares both destination pod and address", s.ID, i)
		}
		if probe.To != nil && !pods[*probe.To] {
			return fmt.Errorf("scenario %s: probe %d destination %s not declared", s.ID, i, *probe.To)
		}
		switch probe.Protocol {
		case ProtocolHTTP, ProtocolTCP:
		default:
			return fmt.Errorf("scenario %s: probe %d has unknown protocol %q", s.ID, i, probe.Protocol)
		}
		switch probe.Expect {
		case ExpectAllow, ExpectDeny:
		default:
			return fmt.Errorf("scenario %s: probe %d has unknown expectation %q", s.ID, i, probe.Expect)
		}
		if probe.Port <= 0 || probe.Port > 65535 {
			return fmt.Errorf("scenario %s: probe %d has invalid port %d", s.ID, i, probe.Port)
		}
	}

	return nil
}
