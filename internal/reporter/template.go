package reporter

// template is appended to #mocha at construction.
const template = `<h1 id="test-title"></h1>
<ul id="mocha-stats">
  <li class="test-option">
    <label>
      <input type="checkbox" id="enable-coverage"> Enable coverage
    </label>
  </li>
  <li class="test-option">
    <label>
      <input type="checkbox" id="hide-passed"> Hide passed
    </label>
  </li>
  <li class="test-option">
    <label>
      <input type="checkbox" id="no-try-catch"> No try/catch
    </label>
  </li>
  <li class="passes">passes: <em class="value">0</em></li>
  <li class="failures">failures: <em class="value">0</em></li>
  <li class="duration">duration: <em class="value">0</em>s</li>
  <li class="mocha-progress"><svg width="40" height="40"></svg></li>
</ul>
<ul id="mocha-report"></ul>`

const (
	suiteMarkup  = `<li class="suite"><h1><a></a></h1><ul></ul></li>`
	orphanMarkup = `<li class="suite"><h1></h1><ul></ul></li>`
	testMarkup   = `<li class="test"><h2><span class="title"></span></h2></li>`
	codeMarkup   = `<pre><code></code></pre>`

	orphanTitle = "ORPHAN TESTS"
)

// Element IDs of the interactive toggles.
const (
	ToggleCoverage   = "enable-coverage"
	ToggleHidePassed = "hide-passed"
	ToggleNoTryCatch = "no-try-catch"
)
