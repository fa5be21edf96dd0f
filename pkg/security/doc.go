// Package security scores how risky an authentication attempt is and decides
// whether it must pass multi-factor authentication.
//
// The score is the sum of fixed points per observed factor (unknown public
// IP, concurrent sessions from several IPs, automated user agent, unknown or
// missing device, unusual hour, new account), clamped to [0, 100]. Weights
// and thresholds live in Config.
//
// # Usage Example
//
//	scorer := security.NewScorer(security.NewSessionStore(db), dir, security.DefaultConfig(),
//		security.WithAudit(sink),
//		security.WithMetrics(metrics),
//	)
//
//	assessment, err := scorer.Score(ctx, security.Signal{
//		UserID:    42,
//		IPAddress: "203.0.113.7",
//		UserAgent: r.UserAgent(),
//	})
//	if err != nil {
//		return err
//	}
//	mfa, err := scorer.ShouldRequireMFA(ctx, 42, assessment.Score, "203.0.113.7")
package security
