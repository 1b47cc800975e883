package jobtrace

import (
	ojs "github.com/openjobspec/ojs-jobtrace"
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys set on job spans.
const (
	AttrCodeNamespace   = attribute.Key("code.namespace")
	AttrDestinationKind = attribute.Key("messaging.destination_kind")
	AttrSystem          = attribute.Key("messaging.system")
	AttrDestination     = attribute.Key("messaging.destination")
	AttrMessageID       = attribute.Key("messaging.message_id")
	AttrProviderJobID   = attribute.Key("messaging.ojs.provider_job_id")
	AttrPriority        = attribute.Key("messaging.ojs.priority")
	AttrAttempt         = attribute.Key("messaging.ojs.attempt")
	AttrNetTransport    = attribute.Key("net.transport")
)

// jobAttributes returns the semantic attributes for job. Empty values are
// left out.
func (s *Subscriber) jobAttributes(job *ojs.Job) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 10)
	str := func(k attribute.Key, v string) {
		if v != "" {
			attrs = append(attrs, k.String(v))
		}
	}

	str(AttrCodeNamespace, job.Type)
	attrs = append(attrs, AttrDestinationKind.String("queue"))
	str(AttrSystem, job.Adapter)
	str(AttrDestination, job.Queue)
	str(AttrMessageID, job.ID)
	str(AttrProviderJobID, job.ProviderJobID)
	attrs = append(attrs, AttrPriority.Int(job.Priority))
	if job.Attempt > 0 {
		attrs = append(attrs, AttrAttempt.Int(job.Attempt))
	}
	if ojs.IsInProcess(job.Adapter) {
		attrs = append(attrs, AttrNetTransport.String("inproc"))
	}

	if s.cfg.attributes != nil {
		attrs = append(attrs, s.cfg.attributes(job)...)
	}
	return attrs
}
