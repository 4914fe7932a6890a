package orchestrator

import (
	"context"
	"time"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"

	"netpol-verify/internal/cluster"
)

// Gateway is the cluster boundary the orchestrator drives. internal/cluster
// provides the client-go implementation; tests substitute scripted fakes.
type Gateway interface {
	CreateNamespace(ctx context.Context, ns *corev1.Namespace) error
	CreatePod(ctx context.Context, pod *corev1.Pod) error
	ApplyPolicy(ctx context.Context, policy *networkingv1.NetworkPolicy) error
	GetPodStatus(ctx context.Context, namespace, name string) (cluster.PodStatus, error)
	ExecInPod(ctx context.Context, namespace, pod, container string, command []string, timeout time.Duration) (cluster.ExecResult, error)
	DeleteNamespace(ctx context.Context, name string, waitForGone bool, timeout time.Duration) error
	ListEvents(ctx context.Context, namespace string) ([]corev1.Event, error)
}
