// Package metrics define las métricas Prometheus del servidor.
// Vive en un paquete aparte para evitar ciclos entre http, audit, event y scheduler.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	OTPChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tokenguard_otp_checks_total",
		Help: "Verificaciones OTP por tipo de token y outcome",
	}, []string{"tokentype", "outcome"})

	ChallengesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tokenguard_challenges_created_total",
		Help: "Challenges creados",
	})

	AuditWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tokenguard_audit_writes_total",
		Help: "Escrituras de auditoría por backend y resultado",
	}, []string{"backend", "result"}) // result: ok|failed|unsigned

	EventHandlerRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tokenguard_event_handler_runs_total",
		Help: "Invocaciones de handlers de eventos",
	}, []string{"handler", "position", "result"})

	TaskRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tokenguard_periodic_task_runs_total",
		Help: "Ejecuciones de tareas periódicas",
	}, []string{"task", "result"})

	TaskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tokenguard_periodic_task_duration_seconds",
		Help:    "Duración de tareas periódicas",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
	}, []string{"task"})

	// EventCounters refleja los contadores del handler "counter" (tarea event_counter).
	EventCounters = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tokenguard_event_counter",
		Help: "Valor de contadores de eventos",
	}, []string{"counter"})

	// TokenStats cuenta tokens por tipo y estado (tarea simple_stats).
	TokenStats = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tokenguard_tokens",
		Help: "Tokens enrolados por tipo",
	}, []string{"tokentype"})
)

var (
	registerOnce sync.Once
	registerErr  error
)

// Register registra las métricas de dominio y HTTP (default registry si reg es nil).
func Register(reg prometheus.Registerer) error {
	registerOnce.Do(func() {
		for _, c := range []prometheus.Collector{
			OTPChecks, ChallengesCreated, AuditWrites, EventHandlerRuns, TaskRuns, TaskDuration,
			EventCounters, TokenStats,
			httpRequestsTotal, httpRequestDuration, httpInflight,
		} {
			if err := RegisterCollector(reg, c); err != nil {
				registerErr = err
				return
			}
		}
	})
	return registerErr
}

// RegisterCollector registra el collector en el registry indicado, ignorando duplicados.
func RegisterCollector(reg prometheus.Registerer, collector prometheus.Collector) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := reg.Register(collector); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}
