package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"netpol-verify/internal/scenario"
)

// containerName is the single container every scenario pod runs.
const containerName = "main"

// PodRef locates a created pod by its runtime namespace name.
type PodRef struct {
	Namespace string
	Name      string
	Container string
}

func (r PodRef) String() string {
	return r.Namespace + "/" + r.Name
}

// Topology records what a build created (or attempted to), keyed so teardown
// and probing can find everything. Namespace aliases from the scenario map to
// generated runtime names.
type Topology struct {
	ScenarioID string

	// NamespaceNames maps scenario-local alias to the generated runtime
	// namespace name. Populated for every declared namespace before any
	// creation call, so teardown can always request deletion of all of them.
	NamespaceNames map[string]string

	// Pods maps scenario pod ref to runtime pod ref.
	Pods map[scenario.PodRef]PodRef

	// CreatedNamespaces counts namespaces actually created, as opposed to
	// merely named. Zero after a failed build means the cluster holds
	// nothing for this scenario.
	CreatedNamespaces int
}

// AllNamespaces returns every generated runtime namespace name.
func (t *Topology) AllNamespaces() []string {
	names := make([]string, 0, len(t.NamespaceNames))
	for _, name := range t.NamespaceNames {
		names = append(names, name)
	}
	return names
}

// AllPods returns every runtime pod ref.
func (t *Topology) AllPods() []PodRef {
	refs := make([]PodRef, 0, len(t.Pods))
	for _, ref := range t.Pods {
		refs = append(refs, ref)
	}
	return refs
}

// BuildError wraps the cluster error that aborted a build. The partial
// topology stays with the caller (via Build's return) so teardown can still
// run.
type BuildError struct {
	Stage string
	Err   error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("topology build failed at %s: %v", e.Stage, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// ErrScenarioAlreadyBuilt is returned when Build is invoked twice for the
// same scenario id. Build is single-use per scenario invocation.
var ErrScenarioAlreadyBuilt = errors.New("scenario already built")

// Builder creates scenario topologies through the gateway. Creation order is
// strict: namespaces, then pods. Policies are applied separately (see
// ApplyPolicies) because they must land only after readiness, otherwise a
// probe could run in the unenforced window and report a false pass.
type Builder struct {
	gateway Gateway
	prefix  string
	log     *logrus.Entry

	mu    sync.Mutex
	built map[string]bool
}

// NewBuilder returns a Builder generating namespace names with the given
// prefix.
func NewBuilder(gateway Gateway, prefix string) *Builder {
	if prefix == "" {
		prefix = "netpol"
	}
	return &Builder{
		gateway: gateway,
		prefix:  prefix,
		log:     logrus.WithField("component", "builder"),
		built:   map[string]bool{},
	}
}

// namespaceName generates a runtime namespace name unique across concurrent
// scenarios and repeated runs: prefix, scenario id, namespace alias and a
// process-unique token. Uniqueness by construction is the only concurrency
// control between scenarios.
func (b *Builder) namespaceName(scenarioID, alias, token string) string {
	name := fmt.Sprintf("%s-%s-%s", b.prefix, scenarioID, alias)
	// Namespace names are capped at 63 characters. Truncation must eat the
	// id/alias portion, never the token: the token is what keeps concurrent
	// runs of the same scenario apart.
	max := 63 - len(token) - 1
	if len(name) > max {
		name = strings.TrimSuffix(name[:max], "-")
	}
	return name + "-" + token
}

// Build creates the scenario's namespaces and pods. On any creation failure
// the remaining creations are aborted; the returned topology still names
// everything so the caller can tear down what was requested.
func (b *Builder) Build(ctx context.Context, sc scenario.Scenario) (*Topology, error) {
	b.mu.Lock()
	if b.built[sc.ID] {
		b.mu.Unlock()
		return nil, errors.Wrapf(ErrScenarioAlreadyBuilt, "scenario %q", sc.ID)
	}
	b.built[sc.ID] = true
	b.mu.Unlock()

	token := uuid.NewString()[:8]
	topo := &Topology{
		ScenarioID:     sc.ID,
		NamespaceNames: map[string]string{},
		Pods:           map[scenario.PodRef]PodRef{},
	}
	for _, ns := range sc.Namespaces {
		topo.NamespaceNames[ns.Name] = b.namespaceName(sc.ID, ns.Name, token)
	}

	for _, ns := range sc.Namespaces {
		name := topo.NamespaceNames[ns.Name]
		b.log.WithField("scenario", sc.ID).Debugf("creating namespace %s", name)
		err := b.gateway.CreateNamespace(ctx, &corev1.Namespace{
			ObjectMeta: metav1.ObjectMeta{
				Name:   name,
				Labels: ns.Labels,
			},
		})
		if err != nil {
			return topo, &BuildError{Stage: "namespace " + name, Err: err}
		}
		topo.CreatedNamespaces++
	}

	for _, pod := range sc.Pods {
		ref := PodRef{
			Namespace: topo.NamespaceNames[pod.Namespace],
			Name:      pod.Name,
			Container: containerName,
		}
		b.log.WithField("scenario", sc.ID).Debugf("creating pod %s", ref)
		if err := b.gateway.CreatePod(ctx, kubePod(pod, ref.Namespace)); err != nil {
			return topo, &BuildError{Stage: "pod " + ref.String(), Err: err}
		}
		topo.Pods[scenario.PodRef{Namespace: pod.Namespace, Name: pod.Name}] = ref
	}

	return topo, nil
}

// ApplyPolicies creates the scenario's policies in declared order, resolving
// namespace aliases through the topology. Label selectors inside the policy
// body are passed through untouched.
func (b *Builder) ApplyPolicies(ctx context.Context, topo *Topology, policies []scenario.PolicySpec) error {
	for _, policy := range policies {
		ns := topo.NamespaceNames[policy.Namespace]
		b.log.WithField("scenario", topo.ScenarioID).Debugf("applying policy %s/%s", ns, policy.Name)
		err := b.gateway.ApplyPolicy(ctx, &networkingv1.NetworkPolicy{
			ObjectMeta: metav1.ObjectMeta{
				Name:      policy.Name,
				Namespace: ns,
			},
			Spec: policy.Spec,
		})
		if err != nil {
			return &BuildError{Stage: fmt.Sprintf("policy %s/%s", ns, policy.Name), Err: err}
		}
	}
	return nil
}

// kubePod renders a scenario pod into the API object. A pod with a port
// serves on it with the image's entrypoint; a client pod is kept alive with
// a sleep so it can be exec'd into.
func kubePod(spec scenario.PodSpec, namespace string) *corev1.Pod {
	container := corev1.Container{
		Name:  containerName,
		Image: spec.Image,
	}
	if spec.Port > 0 {
		container.Ports = []corev1.ContainerPort{
			{ContainerPort: int32(spec.Port)},
		}
	} else {
		container.Command = []string{"sleep", "3600"}
	}

	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      spec.Name,
			Namespace: namespace,
			Labels:    spec.Labels,
		},
		Spec: corev1.PodSpec{
			Containers:    []corev1.Container{container},
			RestartPolicy: corev1.RestartPolicyNever,
		},
	}
}
