package reporter

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/roach88/runview/internal/dom"
	"github.com/roach88/runview/internal/page"
	"github.com/roach88/runview/internal/runner"
)

const hidePassedHash = "hide_passed"

// setupToggles initialises the three checkboxes from the location and
// wires their change handlers.
func (r *Reporter) setupToggles() {
	r.hidePassed = r.stats.Find("#" + ToggleHidePassed)
	dom.SetChecked(r.hidePassed, strings.Contains(r.loc.Hash(), hidePassedHash))
	r.doc.On(r.hidePassed, "change", func(*goquery.Selection) { r.updateHidePassed() })
	r.updateHidePassed()

	r.coverageBox = r.stats.Find("#" + ToggleCoverage)
	dom.SetChecked(r.coverageBox, r.loc.HasParam(page.ParamCoverage))
	r.doc.On(r.coverageBox, "change", func(*goquery.Selection) { r.updateCoverageEnabled() })
	r.updateCoverageEnabled()

	r.noTryCatch = r.stats.Find("#" + ToggleNoTryCatch)
	dom.SetChecked(r.noTryCatch, r.loc.HasParam(page.ParamNoTryCatch))
	r.doc.On(r.noTryCatch, "change", func(*goquery.Selection) { r.updateNoTryCatch() })
	r.updateNoTryCatch()
}

// Toggle flips the checkbox with the given id as a user click would.
func (r *Reporter) Toggle(id string) error {
	var box *goquery.Selection
	switch id {
	case ToggleHidePassed:
		box = r.hidePassed
	case ToggleCoverage:
		box = r.coverageBox
	case ToggleNoTryCatch:
		box = r.noTryCatch
	default:
		return fmt.Errorf("unknown toggle %q", id)
	}
	dom.SetChecked(box, !dom.Checked(box))
	r.doc.Trigger(box, "change")
	return nil
}

// updateHidePassed only touches classes and the URL fragment; it never
// reloads.
func (r *Reporter) updateHidePassed() {
	targets := r.doc.Find("#mocha-report, #blanket-main")
	if dom.Checked(r.hidePassed) {
		targets.AddClass("hide-passed")
		r.loc.SetHash("#" + hidePassedHash)
		return
	}
	targets.RemoveClass("hide-passed")
	r.loc.SetHash("#")
}

func (r *Reporter) updateCoverageEnabled() {
	r.updateExclusive(r.coverageBox, page.ParamCoverage, r.noTryCatch, page.ParamNoTryCatch)
}

func (r *Reporter) updateNoTryCatch() {
	r.updateExclusive(r.noTryCatch, page.ParamNoTryCatch, r.coverageBox, page.ParamCoverage)
}

// updateExclusive syncs one reload toggle with its query parameter.
// Enabling it clears the other toggle, both checkbox and parameter, before
// the single reload.
func (r *Reporter) updateExclusive(box *goquery.Selection, param string, other *goquery.Selection, otherParam string) {
	if dom.Checked(box) {
		if r.loc.HasParam(param) {
			return
		}
		r.loc.SetParam(param, "true")
		r.loc.ClearParam(otherParam)
		dom.SetChecked(other, false)
		r.logger.Info("toggle enabled, reloading", "param", param)
		r.loc.Reload()
		return
	}
	if r.loc.HasParam(param) {
		r.loc.ClearParam(param)
		r.logger.Info("toggle disabled, reloading", "param", param)
		r.loc.Reload()
	}
}

// RunnerOptions applies the location's query parameters to opts: grep
// filters the run and no_try_catch disables fault isolation.
func (r *Reporter) RunnerOptions(opts runner.Options) runner.Options {
	if grep, ok := r.loc.Param(page.ParamGrep); ok {
		opts.Grep = grep
	}
	if r.loc.HasParam(page.ParamNoTryCatch) {
		opts.AllowUncaught = true
	}
	return opts
}
