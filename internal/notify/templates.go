package notify

import "html/template"

const alertEmailLayout = `<!DOCTYPE html>
<html>
<body style="margin:0;padding:0;background-color:#050505;font-family:Arial,sans-serif;">
  <table width="100%" cellpadding="0" cellspacing="0" style="max-width:600px;margin:0 auto;background-color:#141414;">
    <tr>
      <td style="padding:32px;color:#ffffff;">
        <h1 style="font-size:22px;margin:0 0 16px 0;color:{{.Accent}};">{{.Headline}}</h1>
        <p style="color:#cccccc;font-size:15px;">{{.Lead}}</p>
        <table width="100%" cellpadding="8" cellspacing="0" style="background-color:#212328;border-radius:8px;">
          <tr><td style="color:#9095a1;">Symbol</td><td style="color:#ffffff;font-weight:bold;">{{.Symbol}}</td></tr>
          <tr><td style="color:#9095a1;">Company</td><td style="color:#ffffff;">{{.Company}}</td></tr>
          <tr><td style="color:#9095a1;">Current Price</td><td style="color:{{.Accent}};font-weight:bold;">{{.CurrentPrice}}</td></tr>
          <tr><td style="color:#9095a1;">Target Price</td><td style="color:#ffffff;">{{.TargetPrice}}</td></tr>
          <tr><td style="color:#9095a1;">Time</td><td style="color:#ffffff;">{{.Timestamp}}</td></tr>
        </table>
        <p style="color:#6b7280;font-size:12px;margin-top:32px;">
          You are receiving this because you set a price alert.
          <a href="{{.ManageURL}}" style="color:#fdd458;">Manage email preferences</a>
          {{if .UnsubscribeURL}}&middot; <a href="{{.UnsubscribeURL}}" style="color:#fdd458;">Unsubscribe</a>{{end}}
        </p>
      </td>
    </tr>
  </table>
</body>
</html>
`

var alertEmailTemplate = template.Must(template.New("alert").Parse(alertEmailLayout))

type alertEmailView struct {
	Headline       string
	Lead           string
	Accent         template.CSS
	Symbol         string
	Company        string
	CurrentPrice   string
	TargetPrice    string
	Timestamp      string
	ManageURL      string
	UnsubscribeURL string
}

type directionVariant struct {
	subject  string
	headline string
	lead     string
	accent   template.CSS
}

var (
	upperVariant = directionVariant{
		subject:  "Price Alert: %s hit upper target",
		headline: "Price Above Reached",
		lead:     "Good news! Your price alert has been triggered.",
		accent:   "#0fedbe",
	}
	lowerVariant = directionVariant{
		subject:  "Price Alert: %s hit lower target",
		headline: "Price Below Hit",
		lead:     "Your lower price alert has been triggered.",
		accent:   "#ff495b",
	}
)
