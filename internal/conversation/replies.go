package conversation

import (
	"fmt"
	"strings"

	"satsalert/internal/refdata"
	"satsalert/internal/storage"
)

const (
	msgWelcome = "🤖 *Welcome to the Simplex Robosats alert bot!* 🚀 This bot will notify you 📬 every time an order that matches your requirements is posted on Robosats. To get started, please type `/help` for a list of commands you can use. 🛠️\n\nCreated by 🏛️ TempleOfSats 🏛️"

	msgUnrecognized = "🤖🚨 Oops! I didn't catch that. Looks like you've entered an unrecognized command. No worries! Type `/help` for a list of commands!"

	msgAskAction       = "🔄 Do you want to BUY 💸 or SELL 💰? Please type `BUY` or `SELL` to choose your action. 🚀"
	msgBadAction       = "Invalid option. Please type BUY or SELL."
	msgAskCurrency     = "🌍 What is your fiat currency? (e.g., `USD`, `EUR`) Type the currency code to continue. Or you can type 'any' to avoid filtering by currency. This can be useful for trades that involves payment method compatible with multiple currencies (like Wise, Revolut, USDT ...) 💱"
	msgBadCurrency     = "🌍 The currency code you entered is not recognized. Please enter 'ANY' or a valid currency code. (e.g., USD, EUR)"
	msgAskPremium      = "💼 What is the premium you're willing to buy/sell for (as a percentage)? Type the maximum premium if buying, minimum if selling. (e.g., 10)"
	msgBadPremium      = "Please enter a valid number for premium."
	msgAskPayment      = "💳 What payment method do you accept? Type your preferred method. if you allow multiple methods separate them by ',' . (i.e. paypal,sepa,revolut) Or type `Any` 🔄"
	msgAskAmount       = "💰 Please specify your minimum and maximum amount by entering it in the following format: `min-max`. For example, `100-500`. If there's no limit, type `ANY` for either min, max or both. This will help us match you with the perfect orders! 📊"
	msgAmountHint      = "💡 Please ensure you use the correct format with a hyphen between the minimum and maximum amounts, like `100-500` or `ANY-ANY`. Spaces around the hyphen are okay. Try again:"
	msgCreateFailed    = "⚠️ Failed to create alert due to an error."
	msgDatabaseError   = "⚠️ Database error occurred."
	msgNoAlerts        = "No alerts found."
	msgDisableFailed   = "⚠️ Oops! There was an error disabling the alert."
	msgEnableFailed    = "Error enabling the alert."
	msgAllDisabled     = "All alerts have been disabled successfully."
	msgNoneToDisable   = "No enabled alerts found to disable."
	msgDisableAllError = "Error disabling all alerts."
	msgAllEnabled      = "✅ All alerts have been enabled successfully."
	msgNoneToEnable    = "⚠️ No disabled alerts found to enable."
	msgEnableAllError  = "⚠️ Error enabling all alerts."
	msgBadRemoveID     = "Please provide a valid alert ID."
	msgRemoveFailed    = "Error removing the alert."
	msgExtendFormat    = "Invalid command format. Use /extend <alert id> <number of days>."
	msgExtendFailed    = "⚠️Error extending the alert expiry."
	msgQuoteFailed     = "Sorry, I couldn't retrieve a quote at the moment."
	msgNoQuotes        = "Sorry, no quotes are available at the moment."
)

const msgHelp = `🤖 Here's how you can interact with me, your friendly Robosats Alert Bot:

*/new* 🆕: Create a new alert!

*/list* 📝: List all your alerts

*/disable <alert id>* 🔕: Mute any alert. Use /list to check your alert id.
For example, to disable an alert with ID 10, you would type /disable 10.

*/disableall* 🔕: Take a break and mute all alerts at once.

*/enable <alert id>* 🔔: reenable an alert.

*/enableall* 🔔: reenable all alerts.

*/remove <alert id>* 🗑️: remove the selected alert from the database.

*/extend <alert id> <number of days>* : Extend the life of an alert.
For example, '/extend 10 30' would extend alert ID 10 by 30 days from current date. By default all alerts have a 7 days lifetime. After that they will be disabled but you can always reenable them.

*/satoshi* 📜: a random Satoshi Nakamoto quote.`

func msgNotFound(id string) string        { return fmt.Sprintf("Alert ID %s not found.", id) }
func msgAlreadyDisabled(id string) string { return fmt.Sprintf("Alert ID %s is already disabled.", id) }
func msgAlreadyEnabled(id string) string  { return fmt.Sprintf("Alert ID %s is already enabled.", id) }
func msgEnabled(id string) string         { return fmt.Sprintf("Alert ID %s enabled successfully.", id) }
func msgRemoved(id string) string         { return fmt.Sprintf("Alert ID %s has been successfully removed.", id) }
func msgExtendNotFound(id string) string  { return fmt.Sprintf("⚠️ Alert ID %s not found.", id) }

func msgDisabled(id string) string {
	return fmt.Sprintf("✅ Alert ID %s has been successfully disabled. You won't receive notifications for this alert until you enable it again with /enable %s. 🔕", id, id)
}

func msgExtended(id, until string) string {
	return fmt.Sprintf("✅Alert ID %s expiry extended to %s successfully and is now enabled even if previously disabled.", id, until)
}

func formatConfirmation(d storage.AlertDraft) string {
	var b strings.Builder
	b.WriteString("⚡ Your alert is confirmed as follows!\n\n")
	fmt.Fprintf(&b, "・Orders for you to %s\n", d.Action)
	fmt.Fprintf(&b, "・Currency: %s\n", d.Currency)
	fmt.Fprintf(&b, "・Premium of %s%%\n", formatNumber(d.Premium))
	fmt.Fprintf(&b, "・Payment methods: %s\n", d.PaymentMethod)
	fmt.Fprintf(&b, "・Amount: %s-%s\n\n", formatNumber(d.MinAmount), formatNumber(d.MaxAmount))
	b.WriteString("🚀 Keep an eye out for matching orders! 📈\n\nManage your alerts with /list, /enable, /disable, and /extend commands. Happy trading! 💼")
	return b.String()
}

func formatAlertList(alerts []storage.Alert) string {
	if len(alerts) == 0 {
		return msgNoAlerts
	}
	var b strings.Builder
	b.WriteString("Here are your alerts:\n")
	for _, a := range alerts {
		icon, status := "🔴", "*DISABLED*"
		if a.Active {
			icon, status = "✅", "*ACTIVE*"
		}
		fmt.Fprintf(&b, "%s *Alert Id: %d*\n", icon, a.ID)
		fmt.Fprintf(&b, "Action: %s\n", a.Action)
		fmt.Fprintf(&b, "Currency: %s\n", a.Currency)
		fmt.Fprintf(&b, "Premium: %s\n", formatNumber(a.Premium))
		fmt.Fprintf(&b, "Min Amount: %s, Max Amount: %s\n", formatNumber(a.MinAmount), formatNumber(a.MaxAmount))
		fmt.Fprintf(&b, "Payment Methods: %s\n", a.PaymentMethod)
		fmt.Fprintf(&b, "Status: %s\n\n", status)
	}
	return b.String()
}

func formatQuote(q refdata.Quote) string {
	return fmt.Sprintf("*📜 Satoshi once said:* \n \n \n \"%s\"\n \n %s, %s", q.Text, q.Medium, q.Date)
}

const (
	msgStatusQueryFailed = "Failed to query the alert status."
	msgFindFailed        = "Failed to find the alert."
	msgQueryFailed       = "⚠️ Failed to query the alert."
)
