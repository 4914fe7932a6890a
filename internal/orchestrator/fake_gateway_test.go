package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"

	"netpol-verify/internal/cluster"
)

// fakeGateway scripts cluster behavior for orchestrator tests: it records
// every operation in order, assigns pod IPs, and lets tests decide readiness
// and connectivity.
type fakeGateway struct {
	mu sync.Mutex

	ops        []string
	namespaces map[string]*corev1.Namespace
	pods       map[string]*corev1.Pod
	podIPs     map[string]string
	policies   []*networkingv1.NetworkPolicy
	deleted    []string

	nextIP int

	// neverReady pods (by pod name) never report Ready.
	neverReady map[string]bool
	// noIP pods report Ready but without a pod IP.
	noIP map[string]bool

	// namespaceErr fails every CreateNamespace call.
	namespaceErr error
	// podErr fails CreatePod for the named pod.
	podErr map[string]error
	// policyErr fails every ApplyPolicy call.
	policyErr error
	// execErr fails every ExecInPod call at the transport level.
	execErr error

	// allowFn decides whether a probe from the named pod to the address is
	// connected. Nil allows everything.
	allowFn func(fromPod, address string, port int) bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		namespaces: map[string]*corev1.Namespace{},
		pods:       map[string]*corev1.Pod{},
		podIPs:     map[string]string{},
		neverReady: map[string]bool{},
		noIP:       map[string]bool{},
		podErr:     map[string]error{},
	}
}

func (f *fakeGateway) record(op string) {
	f.ops = append(f.ops, op)
}

// opIndex returns the index of the first op with the prefix, -1 if none.
func (f *fakeGateway) opIndex(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, op := range f.ops {
		if strings.HasPrefix(op, prefix) {
			return i
		}
	}
	return -1
}

// lastOpIndex returns the index of the last op with the prefix, -1 if none.
func (f *fakeGateway) lastOpIndex(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	last := -1
	for i, op := range f.ops {
		if strings.HasPrefix(op, prefix) {
			last = i
		}
	}
	return last
}

func (f *fakeGateway) deletedNamespaces() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.deleted))
	copy(out, f.deleted)
	return out
}

func (f *fakeGateway) CreateNamespace(ctx context.Context, ns *corev1.Namespace) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create-ns " + ns.Name)
	if f.namespaceErr != nil {
		return f.namespaceErr
	}
	if _, exists := f.namespaces[ns.Name]; exists {
		return &cluster.Error{Kind: cluster.KindConflict, Op: "create namespace " + ns.Name, Err: fmt.Errorf("already exists")}
	}
	f.namespaces[ns.Name] = ns
	return nil
}

func (f *fakeGateway) CreatePod(ctx context.Context, pod *corev1.Pod) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := pod.Namespace + "/" + pod.Name
	f.record("create-pod " + key)
	if err := f.podErr[pod.Name]; err != nil {
		return err
	}
	f.nextIP++
	f.pods[key] = pod
	f.podIPs[pod.Name] = fmt.Sprintf("10.0.0.%d", f.nextIP)
	return nil
}

func (f *fakeGateway) ApplyPolicy(ctx context.Context, policy *networkingv1.NetworkPolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("apply-policy " + policy.Namespace + "/" + policy.Name)
	if f.policyErr != nil {
		return f.policyErr
	}
	f.policies = append(f.policies, policy)
	return nil
}

func (f *fakeGateway) GetPodStatus(ctx context.Context, namespace, name string) (cluster.PodStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := namespace + "/" + name
	f.record("status " + key)
	if _, exists := f.pods[key]; !exists {
		return cluster.PodStatus{}, &cluster.Error{Kind: cluster.KindNotFound, Op: "get pod " + key, Err: fmt.Errorf("not found")}
	}
	status := cluster.PodStatus{Phase: corev1.PodRunning}
	if f.neverReady[name] {
		return status, nil
	}
	status.Ready = true
	if !f.noIP[name] {
		status.IP = f.podIPs[name]
	}
	return status, nil
}

func (f *fakeGateway) ExecInPod(ctx context.Context, namespace, pod, container string, command []string, timeout time.Duration) (cluster.ExecResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("exec " + namespace + "/" + pod + " " + strings.Join(command, " "))
	if f.execErr != nil {
		return cluster.ExecResult{}, f.execErr
	}

	address, port := execTarget(command)
	if f.allowFn == nil || f.allowFn(pod, address, port) {
		return cluster.ExecResult{Stdout: "200", ExitCode: 0}, nil
	}
	return cluster.ExecResult{Stderr: "connection timed out", ExitCode: 1}, nil
}

func (f *fakeGateway) ListEvents(ctx context.Context, namespace string) ([]corev1.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("list-events " + namespace)
	return nil, nil
}

func (f *fakeGateway) DeleteNamespace(ctx context.Context, name string, waitForGone bool, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete-ns " + name)
	f.deleted = append(f.deleted, name)
	delete(f.namespaces, name)
	return nil
}

// execTarget extracts the probed address and port from a curl or nc command.
func execTarget(command []string) (string, int) {
	if len(command) == 0 {
		return "", 0
	}
	switch command[0] {
	case "curl":
		url := command[len(command)-1]
		url = strings.TrimPrefix(url, "http://")
		host, portStr, found := strings.Cut(url, ":")
		if !found {
			return url, 80
		}
		var port int
		fmt.Sscanf(portStr, "%d", &port)
		return host, port
	case "nc":
		var port int
		fmt.Sscanf(command[len(command)-1], "%d", &port)
		return command[len(command)-2], port
	}
	return "", 0
}
