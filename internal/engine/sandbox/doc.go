/*
Package sandbox runs widget instances.

An Instance owns one goja event loop. Everything that touches the VM, from
rendering and hooks to timers, proxyFetch settlements and event handlers,
runs as a job on that loop, so the VM is never shared between goroutines.

# Capabilities

Widget code is a function body compiled by package loader. Each render calls
it with exactly these arguments:

  - host: el(tag, attrs, ...children), text(...), fragment(...), icon(name, opts)
  - useState, useEffect, useRef, useMemo, useCallback
  - icons: the icon table, by kebab and Pascal case name
  - proxyFetch(url, options): network access through the bridge
  - props: width, height, customData, setCustomData(next)

require, process, module and exports are removed. Timers and console are
replaced with versions bound to the instance.

# Failure containment

Compile errors, render loops detected by package guard, thrown exceptions,
watchdog interrupts and unhandled promise rejections all land in the
instance's boundary. A crashed instance renders the fallback view until its
source changes.

# Usage

	inst, err := sandbox.New(sandbox.DefaultConfig(), sandbox.Props{
		Code:  "return host.el('div', null, 'Hello ' + props.width);",
		Width: 42,
	}, sandbox.WithID("wgt_01"))
	if err != nil {
		return err
	}
	defer inst.Close()

	v := inst.View() // v.Text == "Hello 42"
*/
package sandbox
