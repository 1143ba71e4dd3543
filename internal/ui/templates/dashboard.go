package templates

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Purchase Margin Dashboard</title>
<script type="module" src="https://cdn.jsdelivr.net/gh/starfederation/datastar@latest/bundles/datastar.js"></script>
<style>
body { font-family: system-ui, sans-serif; margin: 0; background: #f5f6fa; color: #222; }
header { background: #1f2a44; color: #fff; padding: 1rem 2rem; }
main { padding: 1.5rem 2rem; display: grid; gap: 1.5rem; }
section { background: #fff; border-radius: 8px; padding: 1rem 1.25rem; box-shadow: 0 1px 3px rgba(0,0,0,.08); }
.kpi { display: inline-flex; flex-direction: column; margin-right: 2.5rem; }
.kpi-value { font-size: 1.6rem; font-weight: 700; }
.kpi-label { font-size: .8rem; color: #666; }
.modern-table { width: 100%; border-collapse: collapse; font-size: .9rem; }
.modern-table th { text-align: left; border-bottom: 2px solid #e0e0e0; padding: .5rem; }
.modern-table td { border-bottom: 1px solid #eee; padding: .5rem; }
.filters { display: flex; gap: .75rem; align-items: center; }
.filters input { padding: .35rem .5rem; border: 1px solid #ccc; border-radius: 4px; }
</style>
</head>
<body data-signals="{state: '', city: '', vendorsData: [], trendData: []}">
<header><h1>Purchase Margin Dashboard</h1></header>
<main>
<section class="filters">
<label>State <input data-bind-state placeholder="All states"></label>
<label>City <input data-bind-city placeholder="All cities"></label>
<button data-on-click="@get('/sse/refresh-all?state='+$state+'&city='+$city)">Apply</button>
<a href="/api/export">Download XLSX</a>
</section>
<section id="overview-content" data-on-load="@get('/sse/overview')">Loading KPIs…</section>
<section id="products-content" data-on-load="@get('/sse/product-losses')">Loading product losses…</section>
<section id="vendors-content" data-on-load="@get('/sse/vendor-losses')">Loading vendor losses…</section>
<section id="trend-content" data-on-load="@get('/sse/loss-trend')">Loading loss trend…</section>
</main>
</body>
</html>`

// Dashboard is the single-page shell; every widget hydrates itself through
// the datastar SSE endpoints.
func Dashboard() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, dashboardHTML)
		return err
	})
}
