package repository

const resolveUserByBindingSQL = `
SELECT
    u.telegram_id,
    u.phone_number,
    u.registered_at
FROM
    users u
JOIN
    user_bindings b ON u.phone_number = b.user_phone
WHERE
    b.bot_id = $1
    AND b.trunk_id = $2
    AND b.api_key = $3;
`

const listActiveBindingsSQL = `
SELECT
    u.telegram_id,
    b.api_key,
    b.bot_id,
    b.last_checked_at
FROM
    user_bindings b
JOIN
    users u ON u.phone_number = b.user_phone
ORDER BY
    b.id;
`

const listUsersWithBindingsSQL = `
SELECT
    u.telegram_id,
    u.phone_number,
    COALESCE(b.bot_id, ''),
    COALESCE(b.trunk_id, ''),
    COALESCE(b.api_key, '')
FROM
    users u
LEFT JOIN
    user_bindings b ON u.phone_number = b.user_phone
ORDER BY
    u.registered_at;
`
