package bot

import (
	"fmt"
	"html"
	"strings"

	"wb-products-bot/internal/domain"
	"wb-products-bot/internal/usecase/keys"
)

const (
	textSettings      = "⚙️ Настройки бота\n\nВыберите действие:"
	textMainMenu      = "Главное меню"
	textCanceled      = "❌ Действие отменено"
	textNoKeys        = "⚠️ API ключи не настроены. Обратитесь к администратору."
	textListingFailed = "❌ Не удалось получить список товаров. Попробуйте позже."
	textAllKeysFailed = "❌ Не удалось загрузить товары ни по одному ключу. Проверьте ключи в настройках и попробуйте позже."
	textNoSession     = "📦 Нет сохраненных результатов. Запустите поиск заново."
	textPageNotFound  = "❌ Страница не найдена"
	textKeyNotFound   = "❌ Ключ не найден"
	textNameTooShort  = "❌ Название слишком короткое. Введите минимум 2 символа."
	textKeyTooShort   = "❌ Ключ слишком короткий. Проверьте правильность ввода."
	textInternalError = "❌ Что-то пошло не так. Попробуйте позже."
	textUnknown       = "Выберите действие в меню ниже."
	textKeysMenu      = "🔑 Управление API ключами\n\n" +
		"Здесь вы можете добавлять несколько API ключей " +
		"и управлять ими (включать/выключать, редактировать, удалять)."
	textAddKeyName = "➕ Добавление нового API ключа\n\n" +
		"Шаг 1/2: Введите название для ключа\n\n" +
		"Например: 'Основной', 'Тестовый', 'Магазин 1' и т.д."
	keyHint = "Получить ключ можно в личном кабинете Wildberries:\n" +
		"Настройки → Доступ к API → Создать новый токен\n\n" +
		"⚠️ Внимание: ключ должен иметь права на:\n" +
		"• Цены и скидки - Просмотр"
	textUploadExcel = "📊 Отправьте Excel файл (.xlsx)\n\n" +
		"Этот файл будет использоваться для работы с товарами.\n" +
		"Вы можете обновить файл в любой момент."
	textExcelWrongType   = "❌ Пожалуйста, отправьте файл Excel (.xlsx). Файл .xls пересохраните в формате .xlsx"
	textExcelTooLarge    = "❌ Файл слишком большой"
	textExcelMissing     = "⚠️ Excel файл не загружен"
	textExcelGone        = "⚠️ Файл был удален с сервера. Загрузите новый файл."
	textExcelNotFound    = "⚠️ Excel файл не найден"
	textDocumentHint     = "Чтобы загрузить справочник, откройте ⚙️ Настройки → 📊 Загрузить Excel файл"
	textThresholdInvalid = "❌ Пожалуйста, введите целое число от 0 до 100"
	textThresholdCancel  = "Настройка порога отменена"
	textSubscriptionNeed = "🔒 Для получения списка товаров нужна активная подписка.\n\nВыберите тариф:"
	textNoSubscription   = "💳 Подписка\n\nУ вас нет активной подписки. Выберите тариф:"
	textPaymentFailed    = "❌ Не удалось создать платёж. Попробуйте позже."
	textPaymentCanceled  = "❌ Платёж отменён"
	textCancelFailed     = "❌ Не удалось отменить платёж"
	textEmailPrompt      = "📧 Отправьте email для получения чеков об оплате."
	textEmailInvalid     = "❌ Некорректный email. Пример: name@example.com"
)

func welcomeText(hasKey bool) string {
	status := "⚠️ Для начала работы установите WB API ключ в настройках"
	if hasKey {
		status = "✅ API ключ установлен"
	}
	return "👋 Добро пожаловать в WB Management Bot!\n\n" +
		"Этот бот поможет вам работать с товарами на Wildberries.\n\n" +
		"Доступные функции:\n" +
		"📦 Получение списка товаров с ценами и скидками\n" +
		"⚙️ Настройка API ключа\n\n" +
		status
}

func keysListText(n int) string {
	if n == 0 {
		return "📋 У вас пока нет сохраненных API ключей\n\nДобавьте первый ключ, чтобы начать работу."
	}
	return fmt.Sprintf("📋 Ваши API ключи (%d):\n\n✅ - активный\n❌ - выключен\n\nНажмите на ключ для управления", n)
}

// keyViewText возвращает HTML-карточку ключа.
func keyViewText(v keys.KeyView) string {
	status := "❌ Выключен"
	if v.Active {
		status = "✅ Активен"
	}
	return fmt.Sprintf("🔑 API Ключ\n\nНазвание: %s\nСтатус: %s\nКлюч: <code>%s</code>\n\nВыберите действие:",
		html.EscapeString(v.Name), status, html.EscapeString(v.Masked))
}

func confirmDeleteText(name string) string {
	return fmt.Sprintf("⚠️ Удаление ключа\n\nВы уверены, что хотите удалить ключ '%s'?\n\nЭто действие нельзя отменить.", name)
}

func addKeyValueText(name string) string {
	return fmt.Sprintf("✅ Название: %s\n\nШаг 2/2: Отправьте ваш WB API ключ\n\n%s", name, keyHint)
}

func keyAddedText(name string) string {
	return fmt.Sprintf("✅ API ключ '%s' успешно добавлен!\n\nКлюч автоматически активирован и будет использоваться при запросах.", name)
}

func renameKeyText(name string) string {
	return fmt.Sprintf("✏️ Редактирование названия ключа\n\nТекущее название: %s\n\nВведите новое название:", name)
}

func replaceKeyText(name string) string {
	return fmt.Sprintf("🔄 Редактирование API ключа\n\nКлюч: %s\n\nВведите новое значение API ключа:", name)
}

func thresholdPromptText(current int) string {
	return fmt.Sprintf("📈 Настройка порога скидки\n\nТекущий порог: %d%%\n\n"+
		"Отправьте новое значение порога (от 0 до 100).\n"+
		"Будут показаны товары с реальной скидкой >= этого значения.", current)
}

func thresholdSavedText(v int) string {
	return fmt.Sprintf("✅ Порог скидки установлен: %d%%\n\n"+
		"Теперь при поиске товаров будут показаны только те, "+
		"у которых реальная скидка >= %d%%", v, v)
}

func defaultKeysText(enabled bool) string {
	return "⚙️ Настройки бота\n\nСистемные ключи теперь " + defaultKeysStatus(enabled)
}

func defaultKeysStatus(enabled bool) string {
	if enabled {
		return "включены ✅"
	}
	return "выключены ❌"
}

func excelSavedText(name string, subjects, categories int) string {
	return fmt.Sprintf("✅ Excel файл '%s' успешно загружен!\n\n"+
		"Предметов: %d, категорий: %d.\n"+
		"Файл будет использоваться для работы с товарами.", name, subjects, categories)
}

func excelInfoText(name string, sizeKB float64) string {
	return fmt.Sprintf("📊 Текущий Excel файл:\n\nИмя: %s\nРазмер: %.1f KB", name, sizeKB)
}

func malformedExcelText(err error) string {
	return "❌ Ошибка при загрузке файла: " + err.Error()
}

func activeSubscriptionText(sub domain.Subscription, methods []domain.PaymentMethod) string {
	name := sub.PlanID
	if plan, ok := domain.PlanByID(sub.PlanID); ok {
		name = plan.Name
	}
	var b strings.Builder
	fmt.Fprintf(&b, "💳 Подписка\n\n✅ Подписка активна\nТариф: %s\nДействует до: %s", name, sub.EndDate.Format("02.01.2006"))
	if len(methods) > 0 {
		m := methods[0]
		title := m.Title
		if title == "" && m.CardLast4 != "" {
			title = "*" + m.CardLast4
		}
		fmt.Fprintf(&b, "\n\n🔁 Автопродление с карты %s", title)
	}
	b.WriteString("\n\nПродлить подписку:")
	return b.String()
}

func paymentCreatedText(plan domain.Plan) string {
	return fmt.Sprintf("💳 Оплата тарифа «%s»\n\nСумма: %s ₽\n\nНажмите кнопку ниже, чтобы перейти к оплате. "+
		"После оплаты бот пришлёт уведомление.", plan.Name, FormatPrice(plan.Price))
}

func progressStartedText(total int) string {
	return fmt.Sprintf("⏳ Обрабатываю %d активных ключей...", total)
}

func progressKeyText(index, total int, label string) string {
	return fmt.Sprintf("🔑 Обрабатываю ключ %d/%d: '%s'...", index, total, label)
}
