package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"image/png"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

const paymentPageTemplate = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Payment required</title>
  <style>
    * { box-sizing: border-box; }
    body {
      margin: 0;
      padding: 40px 16px;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
      color: #1a1f36;
      background: #f7f9fc;
      -webkit-font-smoothing: antialiased;
    }
    .pay-card {
      background: #ffffff;
      max-width: 440px;
      margin: 0 auto;
      padding: 32px;
      box-shadow: 0 2px 5px rgba(0,0,0,0.06);
      border-radius: 6px;
      text-align: center;
    }
    h1 { margin: 0 0 8px; font-size: 20px; }
    .sub { color: #5b6475; font-size: 14px; margin: 0 0 24px; }
    .sub code { background: #f1f3f7; padding: 1px 5px; border-radius: 3px; }
    .qr { width: 240px; height: 240px; margin: 0 auto 16px; display: block; }
    .invoice {
      font-size: 11px;
      word-break: break-all;
      background: #f1f3f7;
      border-radius: 4px;
      padding: 10px;
      margin-bottom: 12px;
      max-height: 84px;
      overflow-y: auto;
      text-align: left;
    }
    button {
      background: #2563eb;
      border: 0;
      color: #ffffff;
      border-radius: 4px;
      padding: 8px 16px;
      font-size: 13px;
      cursor: pointer;
    }
    .status { font-size: 13px; color: #5b6475; min-height: 18px; }
    .warn {
      background: #fef3cd;
      color: #8a6d1d;
      border-radius: 4px;
      padding: 12px;
      font-size: 13px;
      margin-bottom: 16px;
    }
    details { text-align: left; margin-top: 20px; font-size: 13px; }
    summary { cursor: pointer; color: #5b6475; }
    #manual { display: flex; gap: 8px; margin-top: 10px; }
    #manual input {
      flex: 1;
      border: 1px solid #d4d9e2;
      border-radius: 4px;
      padding: 7px 9px;
      font-size: 13px;
    }
  </style>
</head>
<body>
  <div class="pay-card">
    <h1>Payment required</h1>
    <p class="sub">{{.GatewayName}} charges <strong>{{.PriceSats}} sats</strong> for <code>{{.Path}}</code>.</p>
{{if .RailDown}}
    <div class="warn">Invoicing is temporarily unavailable. Refresh to try again, or use an existing session token below.</div>
{{else}}
{{if .QRDataURI}}
    <img class="qr" src="{{.QRDataURI}}" alt="Lightning invoice QR code" />
{{end}}
    <div class="invoice"><code id="bolt11">{{.PaymentRequest}}</code></div>
    <button id="copy" type="button">Copy invoice</button>
    <p class="status" id="status">Waiting for payment&hellip;</p>
{{end}}
    <details>
      <summary>Already have a session token?</summary>
      <form id="manual">
        <input id="manual-token" placeholder="st_&hellip;" autocomplete="off" />
        <button type="submit">Use token</button>
      </form>
    </details>
  </div>
  <script>
    (function () {
      var storageKey = "satgate_session_token";
      var token = {{.SessionToken}};
      if (token) {
        localStorage.setItem(storageKey, token);
      } else {
        token = localStorage.getItem(storageKey) || "";
      }

      function retry() {
        var url = new URL(window.location.href);
        url.searchParams.set({{.TokenParam}}, token);
        window.location.replace(url.toString());
      }

      var copyBtn = document.getElementById("copy");
      if (copyBtn) {
        copyBtn.addEventListener("click", function () {
          navigator.clipboard.writeText(document.getElementById("bolt11").textContent);
          copyBtn.textContent = "Copied";
        });
      }

      document.getElementById("manual").addEventListener("submit", function (ev) {
        ev.preventDefault();
        var manual = document.getElementById("manual-token").value.trim();
        if (manual) {
          token = manual;
          localStorage.setItem(storageKey, token);
          retry();
        }
      });

      var statusURL = {{.StatusURL}};
      if (!statusURL) {
        return;
      }
      var attempts = 0;
      var timer = setInterval(function () {
        attempts++;
        if (attempts > {{.PollLimit}}) {
          clearInterval(timer);
          document.getElementById("status").textContent =
            "Timed out waiting for payment. Refresh the page for a new invoice.";
          return;
        }
        fetch(statusURL)
          .then(function (resp) { return resp.json(); })
          .then(function (body) {
            if (body.status === "paid") {
              clearInterval(timer);
              document.getElementById("status").textContent = "Paid. Redirecting…";
              retry();
            } else if (body.status === "expired") {
              clearInterval(timer);
              document.getElementById("status").textContent =
                "Invoice expired. Refresh the page for a new one.";
            }
          })
          .catch(function () {});
      }, {{.PollIntervalMS}});
    })();
  </script>
</body>
</html>
`

// PageInput is everything the payment page needs. SessionToken is set only
// for sessions created by this challenge; returning visitors keep the token
// in localStorage.
type PageInput struct {
	GatewayName    string
	Path           string
	PriceSats      int64
	SessionToken   string
	PaymentRequest string
	QRDataURI      template.URL
	StatusURL      string
	TokenParam     string
	PollIntervalMS int
	PollLimit      int
	RailDown       bool
}

type PageRenderer struct {
	tpl *template.Template
}

func NewPageRenderer() *PageRenderer {
	return &PageRenderer{
		tpl: template.Must(template.New("payment").Parse(paymentPageTemplate)),
	}
}

func (r *PageRenderer) RenderHTML(input PageInput) (string, error) {
	if input.GatewayName == "" {
		input.GatewayName = "This endpoint"
	}
	if input.PollIntervalMS <= 0 {
		input.PollIntervalMS = 1000
	}
	if input.PollLimit <= 0 {
		input.PollLimit = 120
	}

	var buf bytes.Buffer
	if err := r.tpl.Execute(&buf, input); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// InvoiceQR encodes a bolt11 invoice as a PNG data URI for inline display.
// Wallets scan the lightning: URI form.
func InvoiceQR(paymentRequest string) (template.URL, error) {
	// Uppercase keeps the QR in alphanumeric mode, which wallets expect.
	content := strings.ToUpper("lightning:" + strings.TrimSpace(paymentRequest))
	code, err := qr.Encode(content, qr.M, qr.Auto)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	scaled, err := barcode.Scale(code, 240, 240)
	if err != nil {
		return "", fmt.Errorf("scale qr: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return "", fmt.Errorf("render qr png: %w", err)
	}
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
	return template.URL(uri), nil
}
