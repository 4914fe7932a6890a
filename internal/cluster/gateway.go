package cluster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/remotecommand"
	utilexec "k8s.io/client-go/util/exec"
)

// Config carries the explicit cluster connection settings. There is no
// ambient kubectl context or default namespace; everything the gateway needs
// is passed in here.
type Config struct {
	// Kubeconfig is the path to a kubeconfig file. Empty means in-cluster
	// config, falling back to the default kubeconfig location.
	Kubeconfig string

	// RequestTimeout bounds a single API request when the caller does not
	// supply its own deadline.
	RequestTimeout time.Duration
}

// PodStatus is the subset of pod state the orchestrator needs.
type PodStatus struct {
	IP    string
	Ready bool
	Phase corev1.PodPhase
}

// ExecResult is the outcome of a command run inside a pod. A non-zero exit
// code is a result, not an error; errors are reserved for transport and API
// failures.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

type executorFactory func(config *rest.Config, method string, url *url.URL) (remotecommand.Executor, error)

// Gateway wraps the cluster API operations the orchestrator depends on.
// All calls are blocking with bounded timeouts; retry policy belongs to
// callers.
type Gateway struct {
	clientset      kubernetes.Interface
	restConfig     *rest.Config
	requestTimeout time.Duration
	newExecutor    executorFactory
}

// New builds a Gateway from explicit configuration.
func New(cfg Config) (*Gateway, error) {
	var restConfig *rest.Config
	var err error

	if cfg.Kubeconfig != "" {
		restConfig, err = clientcmd.BuildConfigFromFlags("", cfg.Kubeconfig)
	} else {
		restConfig, err = rest.InClusterConfig()
		if err != nil {
			restConfig, err = clientcmd.BuildConfigFromFlags("", clientcmd.RecommendedHomeFile)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Gateway{
		clientset:      clientset,
		restConfig:     restConfig,
		requestTimeout: timeout,
		newExecutor:    remotecommand.NewSPDYExecutor,
	}, nil
}

func (g *Gateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.requestTimeout)
}

// CreateNamespace creates the namespace. A duplicate name is a Conflict.
func (g *Gateway) CreateNamespace(ctx context.Context, ns *corev1.Namespace) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	_, err := g.clientset.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{})
	return classify(fmt.Sprintf("create namespace %s", ns.Name), err)
}

// CreatePod creates the pod in its declared namespace.
func (g *Gateway) CreatePod(ctx context.Context, pod *corev1.Pod) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	_, err := g.clientset.CoreV1().Pods(pod.Namespace).Create(ctx, pod, metav1.CreateOptions{})
	return classify(fmt.Sprintf("create pod %s/%s", pod.Namespace, pod.Name), err)
}

// ApplyPolicy creates the NetworkPolicy. The body is passed through as data;
// the gateway does not interpret it.
func (g *Gateway) ApplyPolicy(ctx context.Context, policy *networkingv1.NetworkPolicy) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	_, err := g.clientset.NetworkingV1().NetworkPolicies(policy.Namespace).Create(ctx, policy, metav1.CreateOptions{})
	return classify(fmt.Sprintf("apply policy %s/%s", policy.Namespace, policy.Name), err)
}

// GetPodStatus reads the pod's IP and Ready condition.
func (g *Gateway) GetPodStatus(ctx context.Context, namespace, name string) (PodStatus, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	pod, err := g.clientset.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return PodStatus{}, classify(fmt.Sprintf("get pod %s/%s", namespace, name), err)
	}

	status := PodStatus{IP: pod.Status.PodIP, Phase: pod.Status.Phase}
	for _, condition := range pod.Status.Conditions {
		if condition.Type == corev1.PodReady && condition.Status == corev1.ConditionTrue {
			status.Ready = true
			break
		}
	}
	return status, nil
}

// ExecInPod runs a command inside the pod and returns its output and exit
// code. The command's own failure (non-zero exit) is reported in the result;
// an error return means the exec itself could not be carried out.
func (g *Gateway) ExecInPod(ctx context.Context, namespace, pod, container string, command []string, timeout time.Duration) (ExecResult, error) {
	op := fmt.Sprintf("exec in pod %s/%s", namespace, pod)

	req := g.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(pod).
		Namespace(namespace).
		SubResource("exec")

	req.VersionedParams(&corev1.PodExecOptions{
		Container: container,
		Command:   command,
		Stdout:    true,
		Stderr:    true,
	}, scheme.ParameterCodec)

	executor, err := g.newExecutor(g.restConfig, "POST", req.URL())
	if err != nil {
		return ExecResult{}, classify(op, err)
	}

	if timeout <= 0 {
		timeout = g.requestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	err = executor.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: &stdout,
		Stderr: &stderr,
	})

	result := ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr utilexec.ExitError
		if errors.As(err, &exitErr) && exitErr.Exited() {
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		return result, classify(op, err)
	}
	return result, nil
}

// DeleteNamespace requests deletion of the namespace. With wait=false the
// call returns as soon as the request is accepted; with wait=true it polls
// until the namespace is gone or the timeout elapses.
func (g *Gateway) DeleteNamespace(ctx context.Context, name string, waitForGone bool, timeout time.Duration) error {
	op := fmt.Sprintf("delete namespace %s", name)

	reqCtx, cancel := g.withTimeout(ctx)
	defer cancel()
	if err := g.clientset.CoreV1().Namespaces().Delete(reqCtx, name, metav1.DeleteOptions{}); err != nil {
		return classify(op, err)
	}
	if !waitForGone {
		return nil
	}

	err := wait.PollUntilContextTimeout(ctx, 2*time.Second, timeout, true, func(ctx context.Context) (bool, error) {
		_, err := g.clientset.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			return true, nil
		}
		return false, nil
	})
	return classify(op, err)
}

// ListEvents returns the namespace's events, for diagnostic evidence on
// failures.
func (g *Gateway) ListEvents(ctx context.Context, namespace string) ([]corev1.Event, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	list, err := g.clientset.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, classify(fmt.Sprintf("list events in %s", namespace), err)
	}
	return list.Items, nil
}

// NewWithClientset wires a Gateway around an existing clientset. Intended
// for tests; New is the production constructor.
func NewWithClientset(clientset kubernetes.Interface, restConfig *rest.Config) *Gateway {
	return &Gateway{
		clientset:      clientset,
		restConfig:     restConfig,
		requestTimeout: 30 * time.Second,
		newExecutor:    remotecommand.NewSPDYExecutor,
	}
}
