/*
Package resilience provides circuit breakers for upstream calls.

# Overview

The network bridge proxy keeps one breaker per upstream host in a Group so
a dead host fails fast without taking other hosts down with it.

# Usage

	group := resilience.NewGroup(resilience.Settings{
		Timeout:     30 * time.Second,
		ReadyToTrip: resilience.TripAfter(5),
		IsFailure:   isNetworkError,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Info("breaker", zap.String("host", name), zap.Stringer("to", to))
		},
	})

	resp, err := resilience.Call(group.Get(host), func() (*http.Response, error) {
		return client.Do(req)
	})

# States

  - Closed: requests pass through
  - Open: requests fail immediately with ErrCircuitOpen
  - Half-Open: a limited number of trial requests decide recovery

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience
