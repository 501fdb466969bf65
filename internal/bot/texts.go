package bot

const (
	textWelcome            = "👋 Welcome! Please enter your portal login:"
	textAskSecret          = "Enter your password:"
	textValidating         = "⏳ Validating your data ..."
	textLoginFailed        = "❌ Login failed. Please re-enter your login:"
	textCouldNotVerify     = "⚠️ Couldn't verify right now. Please re-enter your login:"
	textRegistered         = "✅ Registered! I will start checking your shifts."
	textAlreadyRegistered  = "✅ You are already registered. Use /stop to remove your data."
	textStopped            = "Registration cancelled and data removed."
	textFinishRegistration = "Please finish registration first. Send /stop to cancel."
	textNotRegistered      = "You are not registered yet. Send /start to register."
	textSaveFailed         = "❌ Failed to save your data. Please try again."
	textTryLater           = "Something went wrong. Please try again later."

	textHelp = "Available commands:\n" +
		"/start - Start the bot\n" +
		"/stop - Stop the bot\n" +
		"/new - Show new shifts\n" +
		"/old - Show old shifts\n" +
		"/scheduled - Show scheduled shifts"
)
